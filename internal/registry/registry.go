package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
)

var (
	ErrUnknownCell = errors.New("registry: unknown symbol/kind")
	ErrWaitTimeout = errors.New("registry: wait timed out")
)

// cell pairs one guarded snapshot slot with its edge-triggered signal.
//
// The signal is a 1-buffered channel: a write raises it with a
// non-blocking send, so a raise while already raised is a no-op and the
// slot still overwrites. The consumer drains exactly one token per wake,
// which clears the signal before the next wait.
type cell struct {
	mu     sync.Mutex
	value  model.Snapshot
	signal chan struct{}
}

func newCell() *cell {
	return &cell{signal: make(chan struct{}, 1)}
}

// write reports true when the previous signal was still pending, i.e.
// the consumer will observe this write and the prior one as a single
// coalesced wake.
func (c *cell) write(snapshot model.Snapshot) (coalesced bool) {
	c.mu.Lock()
	c.value = snapshot
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
		return false
	default:
		return true
	}
}

func (c *cell) read() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

type cellKey struct {
	symbol string
	kind   enum.SnapshotKind
}

// Registry holds the per-(symbol, kind) latest-value cells shared between
// the market feed adapter (sole writer) and the pipeline stages (one
// reader per cell). The cell set is fixed at construction; writing or
// waiting on an unconfigured cell is a wiring bug surfaced as
// ErrUnknownCell.
type Registry struct {
	cells map[cellKey]*cell
}

// New builds a registry sized to the configured symbol set, one cell per
// symbol per snapshot kind.
func New(symbols []string) (*Registry, error) {
	if len(symbols) == 0 {
		return nil, errors.New("registry: empty symbol set")
	}

	cells := make(map[cellKey]*cell, len(symbols)*2)
	for _, symbol := range symbols {
		if symbol == "" {
			return nil, errors.New("registry: empty symbol name")
		}
		for _, kind := range []enum.SnapshotKind{enum.SnapshotPrice, enum.SnapshotPosition} {
			key := cellKey{symbol: symbol, kind: kind}
			if _, ok := cells[key]; ok {
				return nil, errors.New("registry: duplicate symbol: " + symbol)
			}
			cells[key] = newCell()
		}
	}

	return &Registry{cells: cells}, nil
}

// Write replaces the snapshot for (symbol, kind) and raises its signal.
// Consecutive writes between two reads collapse to the latest value;
// coalesced reports when that collapse happened.
func (r *Registry) Write(symbol string, kind enum.SnapshotKind, snapshot model.Snapshot) (coalesced bool, err error) {
	c, ok := r.cells[cellKey{symbol: symbol, kind: kind}]
	if !ok {
		return false, ErrUnknownCell
	}

	return c.write(snapshot), nil
}

// WaitForUpdate blocks until the cell's signal is raised, the timeout
// elapses, or ctx is done. On a raised signal it clears the signal and
// returns the current snapshot. A timeout returns ErrWaitTimeout so the
// caller can run liveness checks instead of blocking forever on a
// stalled feed.
func (r *Registry) WaitForUpdate(ctx context.Context, symbol string, kind enum.SnapshotKind, timeout time.Duration) (model.Snapshot, error) {
	c, ok := r.cells[cellKey{symbol: symbol, kind: kind}]
	if !ok {
		return nil, ErrUnknownCell
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrWaitTimeout
	case <-c.signal:
		return c.read(), nil
	}
}

// Peek returns the current snapshot without touching the signal. It
// reports false when nothing has been written yet.
func (r *Registry) Peek(symbol string, kind enum.SnapshotKind) (model.Snapshot, bool) {
	c, ok := r.cells[cellKey{symbol: symbol, kind: kind}]
	if !ok {
		return nil, false
	}

	snapshot := c.read()
	return snapshot, snapshot != nil
}
