package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/hookcron/internal/config"
	"github.com/nextlevelbuilder/hookcron/internal/controller"
	"github.com/nextlevelbuilder/hookcron/internal/cron"
	"github.com/nextlevelbuilder/hookcron/internal/driver"
	"github.com/nextlevelbuilder/hookcron/internal/events"
	"github.com/nextlevelbuilder/hookcron/internal/invoker"
	"github.com/nextlevelbuilder/hookcron/internal/pool"
	"github.com/nextlevelbuilder/hookcron/internal/scheduler"
	"github.com/nextlevelbuilder/hookcron/internal/store"
	"github.com/nextlevelbuilder/hookcron/internal/store/pg"
	"github.com/nextlevelbuilder/hookcron/internal/store/sqlite"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler daemon",
		Long: `Start the scheduler: rehydrate timers for every enabled job, fire them
through the worker pool, and run the hourly auto-rescheduling sweep.

With databaseDsn set in the config the scheduler runs against Postgres
(managed mode); otherwise it uses a local SQLite file (standalone mode).`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	setupLogger(cmd)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	pub := buildPublisher(cfg)

	eval := cron.NewEvaluator()
	clock := cron.SystemClock{}

	inv := invoker.New(invoker.Config{
		MaxSocketsPerHost:   cfg.HTTPMaxSocketsPerHost,
		TargetRatePerMinute: cfg.TargetRatePerMinute,
	})
	drv := driver.New(st, inv, eval, clock, pub)
	workers := pool.New(pool.Config{
		Concurrency: cfg.MaxConcurrentExecutions,
		QueueBound:  cfg.QueueBound,
	})

	orch := scheduler.New(scheduler.Config{
		ShutdownGrace: time.Duration(cfg.ShutdownGraceMs) * time.Millisecond,
	}, st, workers, drv, eval, clock, pub)

	ctrl := controller.New(controller.Config{
		BatchSize: cfg.ReschedulingBatchSize,
		Enabled:   cfg.AutoRescheduling(),
	}, st, orch, eval, clock, pub)
	orch.SetController(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Start(ctx); err != nil {
		st.Close()
		return err
	}

	// Hot reload: only the auto-rescheduling toggle is applied live; the
	// rest of the config takes effect on restart.
	watcher, err := config.NewWatcher(configPath, cfg.ReloadDebounce())
	if err == nil {
		watcher.OnChange(func(next *config.Config) {
			ctrl.SetEnabled(next.AutoRescheduling())
		})
		if err := watcher.Start(); err != nil {
			slog.Warn("config watcher not started", "path", configPath, "error", err)
			watcher = nil
		}
	} else {
		slog.Warn("config watcher unavailable", "error", err)
		watcher = nil
	}

	slog.Info("hookcron running, press Ctrl+C to stop",
		"mode", modeName(cfg),
		"concurrency", cfg.MaxConcurrentExecutions,
		"autoRescheduling", cfg.AutoRescheduling(),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutdown signal received, draining")
	if watcher != nil {
		watcher.Stop()
	}
	orch.Shutdown()
	return nil
}

func setupLogger(cmd *cobra.Command) {
	level := slog.LevelInfo
	if verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.DatabaseDSN != "" {
		db, err := pg.OpenDB(cfg.DatabaseDSN, cfg.DatabaseConnectionLimit)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := pg.Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
		return pg.New(db), nil
	}
	return sqlite.Open(cfg.SQLitePath)
}

func buildPublisher(cfg *config.Config) events.Publisher {
	if cfg.RedisAddr == "" {
		return events.Nop{}
	}
	return events.NewRedisPublisher(cfg.RedisAddr, cfg.RedisEventChannel)
}

func modeName(cfg *config.Config) string {
	if cfg.DatabaseDSN != "" {
		return "managed"
	}
	return "standalone"
}
