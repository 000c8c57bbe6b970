// Package pipeline holds the per-symbol producer stages that sit between
// the shared-state registry and the strategy stage.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/registry"
)

// StageConfig is shared by the price and position stages.
type StageConfig struct {
	Symbol         string
	Granularity    time.Duration
	PollTimeout    time.Duration // bounds every registry wait; also the shutdown latency
	StaleThreshold int           // consecutive wait timeouts before a stale warning; <=0 means 10
}

func (cfg *StageConfig) fill() {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 10
	}
}

// PriceStage turns one symbol's coalesced price signal into the ordered
// tick and candle queues. One instance per symbol, one goroutine each.
type PriceStage struct {
	cfg     StageConfig
	reg     *registry.Registry
	ticks   *bus.Queue[model.PriceSnapshot]
	candles *bus.Queue[model.Candle]
	builder *CandleBuilder
	metrics *obs.Metrics

	lastDrops uint64
}

// NewPriceStage wires a price stage for one symbol.
func NewPriceStage(cfg StageConfig, reg *registry.Registry, ticks *bus.Queue[model.PriceSnapshot], candles *bus.Queue[model.Candle], metrics *obs.Metrics) *PriceStage {
	cfg.fill()
	return &PriceStage{
		cfg:     cfg,
		reg:     reg,
		ticks:   ticks,
		candles: candles,
		builder: NewCandleBuilder(cfg.Symbol, cfg.Granularity),
		metrics: metrics,
	}
}

// Run waits on the price signal and forwards ticks and closed candles
// until ctx ends. Repeated wait timeouts are logged as staleness but
// never stop the loop; only a registry wiring error is fatal.
func (s *PriceStage) Run(ctx context.Context) error {
	logs.Infof("price stage started, symbol: %s, granularity: %s", s.cfg.Symbol, s.cfg.Granularity)
	defer logs.Infof("price stage stopped, symbol: %s", s.cfg.Symbol)

	stale := 0
	for {
		snapshot, err := s.reg.WaitForUpdate(ctx, s.cfg.Symbol, enum.SnapshotPrice, s.cfg.PollTimeout)
		switch {
		case err == nil:
		case errors.Is(err, registry.ErrWaitTimeout):
			stale++
			if stale%s.cfg.StaleThreshold == 0 {
				s.metrics.Inc(obs.CounterStaleTimeouts)
				logs.Warnf("price feed stale, symbol: %s, quiet for %s", s.cfg.Symbol, time.Duration(stale)*s.cfg.PollTimeout)
			}
			continue
		case ctx.Err() != nil:
			return nil
		default:
			return err
		}
		stale = 0

		tick, ok := snapshot.(model.PriceSnapshot)
		if !ok {
			logs.Errorf("price stage: unexpected snapshot type for %s", s.cfg.Symbol)
			continue
		}

		if err := s.ticks.Push(ctx, tick); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logs.Errorf("push tick, symbol: %s, err: %+v", s.cfg.Symbol, err)
			continue
		}
		s.metrics.Inc(obs.CounterTicks)

		for _, candle := range s.builder.Apply(tick) {
			if err := s.candles.Push(ctx, candle); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logs.Errorf("push candle, symbol: %s, err: %+v", s.cfg.Symbol, err)
				continue
			}
			s.metrics.Inc(obs.CounterCandles)
			if candle.Carried {
				s.metrics.Inc(obs.CounterCarriedCandles)
			}
		}
		s.syncDropCounter()
	}
}

// syncDropCounter folds queue-side evictions into the shared metrics.
func (s *PriceStage) syncDropCounter() {
	drops := s.ticks.Dropped() + s.candles.Dropped()
	if drops > s.lastDrops {
		s.metrics.Add(obs.CounterQueueDrops, drops-s.lastDrops)
		s.lastDrops = drops
	}
}
