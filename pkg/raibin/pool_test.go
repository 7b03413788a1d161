package raibin

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestRunIndexed(t *testing.T) {
	out := make([]int, 100)
	err := runIndexed(context.Background(), len(out), 4, false, func(ctx context.Context, i int) error {
		out[i] = i * i
		return nil
	})
	if err != nil {
		t.Fatalf("runIndexed failed: %v", err)
	}
	for i, v := range out {
		if v != i*i {
			t.Fatalf("out[%d] = %d, want %d", i, v, i*i)
		}
	}
}

func TestRunIndexed_Error(t *testing.T) {
	boom := errors.New("boom")
	var ran atomic.Int32
	err := runIndexed(context.Background(), 50, 1, false, func(ctx context.Context, i int) error {
		ran.Add(1)
		if i == 3 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n := ran.Load(); n == 50 {
		t.Errorf("all %d tasks ran after an early failure", n)
	}
}

func TestRunIndexed_FailWhenBusy(t *testing.T) {
	// the first task holds the only slot until the pool gives up
	err := runIndexed(context.Background(), 2, 1, true, func(ctx context.Context, i int) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestRunIndexed_FailWhenBusyKeepsTaskError(t *testing.T) {
	// Task 0 fails without looking at ctx and holds the only slot until it
	// does, so its error is recorded whether the pool gives up on task 1 or
	// task 1 starts after the failure.
	boom := errors.New("boom")
	for range 50 {
		err := runIndexed(context.Background(), 3, 1, true, func(ctx context.Context, i int) error {
			if i == 0 {
				return boom
			}
			<-ctx.Done()
			return ctx.Err()
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	}
}

func TestRunIndexed_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runIndexed(ctx, 10, 2, false, func(ctx context.Context, i int) error {
		t.Error("task ran under a cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunIndexed_Empty(t *testing.T) {
	if err := runIndexed(context.Background(), 0, 1, true, nil); err != nil {
		t.Errorf("runIndexed(0) = %v", err)
	}
}
