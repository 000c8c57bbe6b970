// Package feed runs the single market feed adapter.
//
// One adapter goroutine fans in every inbound price and position update
// from the external transport and publishes it into the shared-state
// registry. Connection management lives here once, not per symbol;
// per-symbol pipeline stages only ever see the registry.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/registry"
)

// ErrRetryBudgetExhausted reports a dead transport after the configured
// number of consecutive failed subscribe attempts. It is process-fatal:
// a silent feed makes every downstream decision unsafe.
var ErrRetryBudgetExhausted = errors.New("feed: reconnect retry budget exhausted")

// Update is one inbound item from the transport. Exactly one of Price
// and Position is set, selected by Kind.
type Update struct {
	Symbol   string
	Kind     enum.SnapshotKind
	Price    model.PriceSnapshot
	Position model.PositionSnapshot
}

// Stream is the external market/account transport consumed by the
// adapter. Each Subscribe establishes a session and returns a fresh
// update channel; the stream closes the channel when the session dies.
type Stream interface {
	Subscribe(ctx context.Context, symbols []string) (<-chan Update, error)
	Close()
}

// Config controls the adapter's reconnect behavior.
type Config struct {
	Symbols    []string
	Backoff    Backoff
	MaxRetries int // consecutive failed subscribes before fatal; <=0 means 5
}

// Adapter is the single fan-in task between the transport and the
// registry.
type Adapter struct {
	cfg     Config
	stream  Stream
	reg     *registry.Registry
	metrics *obs.Metrics
}

// NewAdapter wires a stream to the registry.
func NewAdapter(cfg Config, stream Stream, reg *registry.Registry, metrics *obs.Metrics) (*Adapter, error) {
	if stream == nil {
		return nil, errors.New("feed: nil stream")
	}
	if reg == nil {
		return nil, errors.New("feed: nil registry")
	}
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("feed: empty symbol set")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &Adapter{cfg: cfg, stream: stream, reg: reg, metrics: metrics}, nil
}

// Run subscribes and pumps updates into the registry until ctx is done.
// Transient disconnects are retried with backoff; exhausting the retry
// budget returns ErrRetryBudgetExhausted so the orchestrator can shut
// the whole pipeline down rather than trade on a dead feed.
func (a *Adapter) Run(ctx context.Context) error {
	defer a.stream.Close()

	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := a.stream.Subscribe(ctx, a.cfg.Symbols)
		if err != nil {
			attempt++
			if attempt >= a.cfg.MaxRetries {
				return fmt.Errorf("%w: after %d attempts, last err: %v", ErrRetryBudgetExhausted, attempt, err)
			}
			wait := a.cfg.Backoff.Next(attempt)
			logs.Warnf("feed subscribe failed (attempt %d/%d), retrying in %s, err: %+v",
				attempt, a.cfg.MaxRetries, wait, err)
			a.metrics.Inc(obs.CounterReconnects)
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}

		attempt = 0
		logs.Infof("feed subscribed, symbols: %v", a.cfg.Symbols)

		if done := a.pump(ctx, updates); done {
			return nil
		}
		// Session died; loop back into the reconnect path.
		attempt++
		wait := a.cfg.Backoff.Next(attempt)
		logs.Warnf("feed stream closed, reconnecting in %s", wait)
		a.metrics.Inc(obs.CounterReconnects)
		if !sleep(ctx, wait) {
			return nil
		}
	}
}

// pump consumes one session's updates. It reports true when ctx ended
// and false when the stream closed its channel.
func (a *Adapter) pump(ctx context.Context, updates <-chan Update) (done bool) {
	for {
		select {
		case <-ctx.Done():
			return true
		case u, ok := <-updates:
			if !ok {
				return false
			}
			a.publish(u)
		}
	}
}

func (a *Adapter) publish(u Update) {
	var (
		coalesced bool
		err       error
	)
	switch u.Kind {
	case enum.SnapshotPrice:
		coalesced, err = a.reg.Write(u.Symbol, u.Kind, u.Price)
	case enum.SnapshotPosition:
		coalesced, err = a.reg.Write(u.Symbol, u.Kind, u.Position)
	default:
		logs.Errorf("feed: unknown update kind %d for %s", u.Kind, u.Symbol)
		return
	}
	if err != nil {
		// The account channel carries every instrument; updates for
		// symbols outside the configured set are expected noise.
		logs.Debugf("feed: write %s %s, err: %+v", u.Symbol, u.Kind, err)
		return
	}

	a.metrics.Inc(obs.CounterWrites)
	if coalesced {
		a.metrics.Inc(obs.CounterCoalesced)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
