package events

import (
	"context"
	"sync/atomic"
	"testing"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := NewBus()

	var got atomic.Int32
	bus.Subscribe("a", func(e Event) {
		if e.Kind == JobCreated {
			got.Add(1)
		}
	})
	bus.Subscribe("b", func(Event) { got.Add(1) })

	bus.Publish(context.Background(), Event{Kind: JobCreated})
	if got.Load() != 2 {
		t.Errorf("handler calls = %d, want 2", got.Load())
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	var got atomic.Int32
	bus.Subscribe("a", func(Event) { got.Add(1) })
	bus.Unsubscribe("a")

	bus.Publish(context.Background(), Event{Kind: JobDeleted})
	if got.Load() != 0 {
		t.Errorf("handler calls = %d, want 0 after unsubscribe", got.Load())
	}
}

func TestMulti_FansOut(t *testing.T) {
	var a, b atomic.Int32
	busA := NewBus()
	busA.Subscribe("x", func(Event) { a.Add(1) })
	busB := NewBus()
	busB.Subscribe("y", func(Event) { b.Add(1) })

	pub := Multi{busA, busB, Nop{}}
	pub.Publish(context.Background(), Event{Kind: ExecutionCompleted})

	if a.Load() != 1 || b.Load() != 1 {
		t.Errorf("fan-out = (%d, %d), want (1, 1)", a.Load(), b.Load())
	}
}
