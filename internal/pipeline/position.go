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

// PositionStage forwards one symbol's coalesced position signal onto the
// ordered position queue. Pass-through with normalization: one snapshot
// in, one snapshot out, no aggregation.
type PositionStage struct {
	cfg     StageConfig
	reg     *registry.Registry
	out     *bus.Queue[model.PositionSnapshot]
	metrics *obs.Metrics

	lastDrops uint64
}

// NewPositionStage wires a position stage for one symbol.
func NewPositionStage(cfg StageConfig, reg *registry.Registry, out *bus.Queue[model.PositionSnapshot], metrics *obs.Metrics) *PositionStage {
	cfg.fill()
	return &PositionStage{cfg: cfg, reg: reg, out: out, metrics: metrics}
}

// Run waits on the position signal until ctx ends, with the same
// staleness and shutdown discipline as the price stage.
func (s *PositionStage) Run(ctx context.Context) error {
	logs.Infof("position stage started, symbol: %s", s.cfg.Symbol)
	defer logs.Infof("position stage stopped, symbol: %s", s.cfg.Symbol)

	stale := 0
	for {
		snapshot, err := s.reg.WaitForUpdate(ctx, s.cfg.Symbol, enum.SnapshotPosition, s.cfg.PollTimeout)
		switch {
		case err == nil:
		case errors.Is(err, registry.ErrWaitTimeout):
			stale++
			if stale%s.cfg.StaleThreshold == 0 {
				s.metrics.Inc(obs.CounterStaleTimeouts)
				logs.Warnf("position feed stale, symbol: %s, quiet for %s", s.cfg.Symbol, time.Duration(stale)*s.cfg.PollTimeout)
			}
			continue
		case ctx.Err() != nil:
			return nil
		default:
			return err
		}
		stale = 0

		position, ok := snapshot.(model.PositionSnapshot)
		if !ok {
			logs.Errorf("position stage: unexpected snapshot type for %s", s.cfg.Symbol)
			continue
		}

		if err := s.out.Push(ctx, normalize(position)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logs.Errorf("push position, symbol: %s, err: %+v", s.cfg.Symbol, err)
			continue
		}
		s.metrics.Inc(obs.CounterPositions)
		s.syncDropCounter()
	}
}

// normalize unifies transport quirks: sizes are absolute with direction
// in Side, and an empty position is always flat with zeroed economics.
func normalize(p model.PositionSnapshot) model.PositionSnapshot {
	if p.Size < 0 {
		p.Size = -p.Size
		switch p.Side {
		case enum.PositionSideLong:
			p.Side = enum.PositionSideShort
		case enum.PositionSideShort:
			p.Side = enum.PositionSideLong
		}
	}
	if p.Size == 0 {
		p.Side = enum.PositionSideFlat
		p.EntryPrice = 0
		p.UnrealizedPnL = 0
		p.Margin = 0
	}
	if !p.Side.IsAvailable() {
		p.Side = enum.PositionSideFlat
	}
	return p
}

func (s *PositionStage) syncDropCounter() {
	drops := s.out.Dropped()
	if drops > s.lastDrops {
		s.metrics.Add(obs.CounterQueueDrops, drops-s.lastDrops)
		s.lastDrops = drops
	}
}
