package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSupervisorRestartsExitedTask(t *testing.T) {
	var calls int32
	sv := NewSupervisor(zerolog.Nop())
	sv.Add("flaky", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	sv.Run(ctx)

	if atomic.LoadInt32(&calls) < 2 {
		t.Fatalf("expected at least 2 restarts, got %d", calls)
	}
}

func TestSupervisorRecoversPanic(t *testing.T) {
	var calls int32
	sv := NewSupervisor(zerolog.Nop())
	sv.Add("panicky", func(ctx context.Context) error {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			panic("boom")
		}
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	sv.Run(ctx)

	if atomic.LoadInt32(&calls) < 2 {
		t.Fatalf("expected task to restart after panic, got %d calls", calls)
	}
}

func TestSupervisorStopsOnContextCancel(t *testing.T) {
	sv := NewSupervisor(zerolog.Nop())
	sv.Add("blocker", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sv.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Supervisor.Run did not return after cancel")
	}
}
