package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("maxConcurrentExecutions: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Stop()

	reloaded := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})

	if err := w.Start(); err != nil {
		t.Fatalf("start watcher: %v", err)
	}

	if err := os.WriteFile(path, []byte("maxConcurrentExecutions: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.MaxConcurrentExecutions != 7 {
			t.Errorf("maxConcurrentExecutions = %d, want 7", cfg.MaxConcurrentExecutions)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("config change never delivered")
	}
}
