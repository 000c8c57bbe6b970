// Package strategy consumes the per-symbol pipeline outputs and turns
// closed candles into risk-checked order intents.
package strategy

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/model"
	"main/internal/obs"
	"main/internal/order"
	"main/internal/risk"
)

// RunnerConfig tunes the per-symbol consumption loop.
type RunnerConfig struct {
	Symbol      string
	PollTimeout time.Duration      // candle wait per cycle; <=0 means 100ms
	OnCandle    func(model.Candle) // observes every consumed candle; optional
}

func (c *RunnerConfig) fill() error {
	if c.Symbol == "" {
		return errors.New("strategy: empty symbol")
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 100 * time.Millisecond
	}
	return nil
}

// Runner owns one symbol. Each cycle it drains the tick and position
// queues down to the latest value, then waits briefly for a closed
// candle, so no queue backs up while another is busy. Decider panics
// are contained to the cycle that raised them.
type Runner struct {
	cfg RunnerConfig

	ticks     *bus.Queue[model.PriceSnapshot]
	candles   *bus.Queue[model.Candle]
	positions *bus.Queue[model.PositionSnapshot]

	decider  Decider
	guard    *risk.Engine
	executor order.Executor
	ids      *obs.IDGenerator
	metrics  *obs.Metrics

	lastTick     *model.PriceSnapshot
	lastPosition *model.PositionSnapshot
	disabled     bool
}

// NewRunner wires a runner over the three symbol queues.
func NewRunner(
	cfg RunnerConfig,
	ticks *bus.Queue[model.PriceSnapshot],
	candles *bus.Queue[model.Candle],
	positions *bus.Queue[model.PositionSnapshot],
	decider Decider,
	guard *risk.Engine,
	executor order.Executor,
	ids *obs.IDGenerator,
	metrics *obs.Metrics,
) (*Runner, error) {
	if err := cfg.fill(); err != nil {
		return nil, err
	}
	if ticks == nil || candles == nil || positions == nil {
		return nil, errors.New("strategy: nil queue")
	}
	if decider == nil {
		return nil, errors.New("strategy: nil decider")
	}
	if guard == nil {
		return nil, errors.New("strategy: nil risk engine")
	}
	if executor == nil {
		return nil, errors.New("strategy: nil executor")
	}
	if ids == nil {
		return nil, errors.New("strategy: nil id generator")
	}
	return &Runner{
		cfg:       cfg,
		ticks:     ticks,
		candles:   candles,
		positions: positions,
		decider:   decider,
		guard:     guard,
		executor:  executor,
		ids:       ids,
		metrics:   metrics,
	}, nil
}

// Run loops until ctx ends or a queue closes underneath it.
func (r *Runner) Run(ctx context.Context) error {
	logs.Infof("strategy runner started, symbol: %s", r.cfg.Symbol)
	defer logs.Infof("strategy runner stopped, symbol: %s", r.cfg.Symbol)

	for {
		if ctx.Err() != nil {
			return nil
		}

		r.drainLatest()

		candle, err := r.candles.Pop(ctx, r.cfg.PollTimeout)
		switch err {
		case nil:
			r.cycle(ctx, &candle)
		case bus.ErrPopTimeout:
			// Quiet market. Ticks and positions were still drained.
		case bus.ErrQueueClosed:
			return nil
		default:
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrapf(err, "pop candle, symbol: %s", r.cfg.Symbol)
		}
	}
}

// drainLatest empties the tick and position queues keeping only the
// newest value of each.
func (r *Runner) drainLatest() {
	for {
		tick, ok := r.ticks.TryPop()
		if !ok {
			break
		}
		t := tick
		r.lastTick = &t
	}
	for {
		position, ok := r.positions.TryPop()
		if !ok {
			break
		}
		p := position
		r.lastPosition = &p
	}
}

func (r *Runner) cycle(ctx context.Context, candle *model.Candle) {
	if r.cfg.OnCandle != nil {
		r.cfg.OnCandle(*candle)
	}
	if r.disabled {
		return
	}

	// A decider that panicked once has unknown internal state, so it is
	// benched for the rest of the session. The runner keeps draining its
	// queues; other symbols are unaffected.
	defer func() {
		if rec := recover(); rec != nil {
			r.disabled = true
			logs.Errorf("decider panicked, disabling symbol for this session, symbol: %s, panic: %v", r.cfg.Symbol, rec)
		}
	}()

	started := time.Now()
	intent, ok := r.decider.Decide(Input{
		Tick:     r.lastTick,
		Candle:   candle,
		Position: r.lastPosition,
	})
	r.metrics.ObserveDecision(time.Since(started))
	r.metrics.Inc(obs.CounterDecisions)
	if !ok {
		return
	}

	r.submit(ctx, intent)
}

func (r *Runner) submit(ctx context.Context, intent model.OrderIntent) {
	view := risk.StateView{Now: time.Now().UTC().UnixNano()}
	if r.lastPosition != nil {
		view.Position = r.lastPosition.SignedSize()
	}
	if r.lastTick != nil {
		view.ReferencePrice = r.lastTick.Last
	}

	decision := r.guard.Evaluate(intent, view)
	if !decision.Allowed() {
		r.metrics.Inc(obs.CounterRiskDenied)
		logs.Warnf("intent denied, symbol: %s, side: %s, size: %f, reason: %s",
			intent.Symbol, intent.Side, intent.Size, decision.Reason)
		return
	}

	intent.ClientOrderID = r.ids.Next()
	r.metrics.Inc(obs.CounterIntents)
	if err := r.executor.Submit(ctx, intent); err != nil {
		logs.Errorf("submit intent, symbol: %s, clientOrderID: %d, err: %+v",
			intent.Symbol, intent.ClientOrderID, err)
		return
	}
	logs.Infof("intent submitted, symbol: %s, side: %s, size: %f, clientOrderID: %d, reason: %s",
		intent.Symbol, intent.Side, intent.Size, intent.ClientOrderID, intent.Reason)
}
