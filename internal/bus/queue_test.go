package bus

import (
	"context"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int](8, OverflowBlock)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if err := q.Push(ctx, i); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	for i := 0; i < 8; i++ {
		got, err := q.Pop(ctx, time.Second)
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if got != i {
			t.Fatalf("order mismatch: got %d want %d", got, i)
		}
	}
}

func TestQueueBlockPolicyAppliesBackpressure(t *testing.T) {
	q := NewQueue[int](1, OverflowBlock)
	ctx := context.Background()

	if err := q.Push(ctx, 1); err != nil {
		t.Fatalf("push: %v", err)
	}

	blockedCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if err := q.Push(blockedCtx, 2); err != context.DeadlineExceeded {
		t.Fatalf("expected blocked push to observe ctx, got %v", err)
	}

	if got, _ := q.TryPop(); got != 1 {
		t.Fatalf("queued item clobbered: got %d", got)
	}
}

func TestQueueDropOldest(t *testing.T) {
	q := NewQueue[int](2, OverflowDropOldest)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		if err := q.Push(ctx, i); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	if q.Dropped() != 2 {
		t.Fatalf("expected 2 drops, got %d", q.Dropped())
	}
	got, err := q.Pop(ctx, time.Second)
	if err != nil || got != 3 {
		t.Fatalf("expected oldest survivor 3, got %d err %v", got, err)
	}
	got, err = q.Pop(ctx, time.Second)
	if err != nil || got != 4 {
		t.Fatalf("expected 4, got %d err %v", got, err)
	}
}

func TestQueuePopTimeout(t *testing.T) {
	q := NewQueue[int](1, OverflowBlock)

	_, err := q.Pop(context.Background(), 20*time.Millisecond)
	if err != ErrPopTimeout {
		t.Fatalf("expected ErrPopTimeout, got %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	q := NewQueue[int](4, OverflowBlock)
	ctx := context.Background()

	if err := q.Push(ctx, 7); err != nil {
		t.Fatalf("push: %v", err)
	}
	q.Close()
	q.Close() // idempotent

	if err := q.Push(ctx, 8); err != ErrQueueClosed {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}

	// Items queued before close remain poppable.
	got, err := q.Pop(ctx, time.Second)
	if err != nil || got != 7 {
		t.Fatalf("expected drained item 7, got %d err %v", got, err)
	}
	if _, err := q.Pop(ctx, time.Second); err != ErrQueueClosed {
		t.Fatalf("expected ErrQueueClosed after drain, got %v", err)
	}
}

func TestQueueProducerConsumerLossless(t *testing.T) {
	q := NewQueue[int](16, OverflowBlock)
	ctx := context.Background()
	const n = 500

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			if err := q.Push(ctx, i); err != nil {
				t.Errorf("push %d: %v", i, err)
				return
			}
		}
	}()

	for i := 0; i < n; i++ {
		got, err := q.Pop(ctx, time.Second)
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if got != i {
			t.Fatalf("lost or reordered item: got %d want %d", got, i)
		}
	}
	<-done
}
