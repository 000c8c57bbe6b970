package pipeline

import (
	"context"
	"testing"
	"time"

	"main/internal/bus"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/registry"
)

func priceFixture(t *testing.T) (*registry.Registry, *bus.Queue[model.PriceSnapshot], *bus.Queue[model.Candle], *PriceStage) {
	t.Helper()
	reg, err := registry.New([]string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	ticks := bus.NewQueue[model.PriceSnapshot](32, bus.OverflowBlock)
	candles := bus.NewQueue[model.Candle](32, bus.OverflowBlock)
	stage := NewPriceStage(StageConfig{
		Symbol:      "BTCUSDT",
		Granularity: time.Minute,
		PollTimeout: 50 * time.Millisecond,
	}, reg, ticks, candles, obs.NewMetrics())
	return reg, ticks, candles, stage
}

func TestPriceStageForwardsTicksAndClosesCandles(t *testing.T) {
	reg, ticks, candles, stage := priceFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- stage.Run(ctx) }()

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	prices := []struct {
		offset time.Duration
		price  float64
	}{
		{0, 100}, {30 * time.Second, 104}, {61 * time.Second, 99},
	}
	for _, p := range prices {
		snapshot := model.PriceSnapshot{Symbol: "BTCUSDT", Last: p.price, EventTsNano: base.Add(p.offset).UnixNano()}
		if _, err := reg.Write("BTCUSDT", enum.SnapshotPrice, snapshot); err != nil {
			t.Fatalf("write: %v", err)
		}
		// Pace writes so the stage observes every tick; registry cells
		// coalesce bursts.
		got, err := ticks.Pop(ctx, time.Second)
		if err != nil {
			t.Fatalf("pop tick: %v", err)
		}
		if got.Last != p.price {
			t.Fatalf("tick mismatch: got %v want %v", got.Last, p.price)
		}
	}

	candle, err := candles.Pop(ctx, time.Second)
	if err != nil {
		t.Fatalf("pop candle: %v", err)
	}
	if candle.Open != 100 || candle.High != 104 || candle.Close != 104 || candle.TickCount != 2 {
		t.Fatalf("candle mismatch: %+v", candle)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stage returned %v on shutdown", err)
		}
	case <-time.After(time.Second):
		t.Fatal("stage did not exit within the poll timeout")
	}
}

func TestPriceStageShutdownLiveness(t *testing.T) {
	_, _, _, stage := priceFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stage.Run(ctx) }()

	// No data flowing at all; the stage must still exit within roughly
	// one poll timeout of cancellation.
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("stage blocked past its poll timeout")
	}
}

func TestPriceStageCountsStaleness(t *testing.T) {
	reg, err := registry.New([]string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	metrics := obs.NewMetrics()
	stage := NewPriceStage(StageConfig{
		Symbol:         "BTCUSDT",
		Granularity:    time.Minute,
		PollTimeout:    5 * time.Millisecond,
		StaleThreshold: 3,
	}, reg,
		bus.NewQueue[model.PriceSnapshot](4, bus.OverflowBlock),
		bus.NewQueue[model.Candle](4, bus.OverflowBlock),
		metrics)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stage.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for metrics.Count(obs.CounterStaleTimeouts) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("staleness never reported")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("staleness must be non-fatal, got %v", err)
	}
}
