package bus

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var (
	ErrQueueClosed = errors.New("stage queue closed")
	ErrPopTimeout  = errors.New("stage queue pop timed out")
)

// OverflowPolicy defines queue behavior when full.
type OverflowPolicy uint8

const (
	// OverflowBlock blocks the producer until space is available,
	// applying backpressure to the upstream stage.
	OverflowBlock OverflowPolicy = iota
	// OverflowDropOldest drops the oldest queued item to make room.
	OverflowDropOldest
)

// Queue is the ordered, lossless handoff between two pipeline stages.
// Exactly one producer pushes and exactly one consumer pops; unlike a
// registry cell, items are never coalesced. The overflow policy decides
// what happens when the consumer falls behind.
type Queue[T any] struct {
	ch      chan T
	policy  OverflowPolicy
	closed  uint32
	dropped uint64
}

// NewQueue allocates a queue with the given capacity and policy.
func NewQueue[T any](capacity int, policy OverflowPolicy) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity), policy: policy}
}

// Push enqueues an item according to the overflow policy. With
// OverflowBlock it waits for space or ctx cancellation; with
// OverflowDropOldest it evicts the oldest queued item instead of waiting.
func (q *Queue[T]) Push(ctx context.Context, item T) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}

	switch q.policy {
	case OverflowDropOldest:
		for {
			select {
			case q.ch <- item:
				return nil
			default:
				select {
				case <-q.ch:
					atomic.AddUint64(&q.dropped, 1)
				default:
				}
			}
		}
	default:
		select {
		case q.ch <- item:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pop waits for the next item, bounded by the timeout so a consumer can
// observe shutdown. Timeout returns ErrPopTimeout; a closed and drained
// queue returns ErrQueueClosed.
func (q *Queue[T]) Pop(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, ErrPopTimeout
	case item, ok := <-q.ch:
		if !ok {
			return zero, ErrQueueClosed
		}
		return item, nil
	}
}

// TryPop returns the next item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	select {
	case item, ok := <-q.ch:
		if !ok {
			var zero T
			return zero, false
		}
		return item, true
	default:
		var zero T
		return zero, false
	}
}

// Close stops the queue from accepting new items. Items already queued
// remain poppable.
func (q *Queue[T]) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Dropped returns how many items the DropOldest policy has evicted.
func (q *Queue[T]) Dropped() uint64 {
	return atomic.LoadUint64(&q.dropped)
}
