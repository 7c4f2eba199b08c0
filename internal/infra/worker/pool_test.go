//go:build !integration

package worker

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newLogger() *zerolog.Logger { l := zerolog.New(io.Discard); return &l }

func TestPool_RunsTasks(t *testing.T) {
	ctx := context.Background()
	p := NewPool(3, newLogger())
	p.Start(ctx)

	var ran int32
	done := make(chan struct{}, 10)
	for i := 0; i < 10; i++ {
		if err := p.SubmitWait(ctx, func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			done <- struct{}{}
			return errors.New("logged, not fatal")
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("tasks did not run")
		}
	}
	p.Stop()
	if ran != 10 {
		t.Errorf("expected 10 tasks, got %d", ran)
	}
}

func TestPool_Submit(t *testing.T) {
	p := NewPool(1, newLogger())
	if err := p.Submit(nil); !errors.Is(err, ErrNilTask) {
		t.Errorf("expected ErrNilTask, got %v", err)
	}

	// Not started: the queue fills up after workers*4 tasks.
	noop := func(context.Context) error { return nil }
	for i := 0; i < 4; i++ {
		if err := p.Submit(noop); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if err := p.Submit(noop); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.SubmitWait(ctx, noop); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline, got %v", err)
	}

	p.Stop()
	p.Stop()
	if err := p.Submit(noop); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}
