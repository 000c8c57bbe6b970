package strategy

import (
	"testing"

	"main/internal/model"
	"main/internal/model/enum"
)

func feedCloses(t *testing.T, d *TrixDecider, closes []float64, position *model.PositionSnapshot) []model.OrderIntent {
	t.Helper()
	var intents []model.OrderIntent
	for _, c := range closes {
		candle := model.Candle{Symbol: "BTCUSDT", Close: c}
		intent, ok := d.Decide(Input{Candle: &candle, Position: position})
		if ok {
			intents = append(intents, intent)
		}
	}
	return intents
}

func trendCloses(start, step float64, n int) []float64 {
	out := make([]float64, 0, n)
	v := start
	for i := 0; i < n; i++ {
		out = append(out, v)
		v += step
	}
	return out
}

func TestTrixCrossoverDirections(t *testing.T) {
	d, err := NewTrixDecider("BTCUSDT", TrixConfig{Period: 3, SignalPeriod: 2, OrderSize: 1})
	if err != nil {
		t.Fatalf("new decider, err: %+v", err)
	}

	// Sustained decline keeps the oscillator pinned under its signal
	// line, so warmup must not fire anything.
	down := feedCloses(t, d, trendCloses(100, -0.5, 40), nil)
	if len(down) != 0 {
		t.Fatalf("intents during decline: %+v", down)
	}

	up := feedCloses(t, d, trendCloses(80, 0.5, 40), nil)
	if len(up) != 1 {
		t.Fatalf("expected one entry on turn up, got: %+v", up)
	}
	if up[0].Side != enum.OrderSideBuy || up[0].Type != enum.OrderTypeMarket {
		t.Fatalf("unexpected entry intent: %+v", up[0])
	}
	if up[0].Size != 1 {
		t.Fatalf("flat entry should use base size, got: %f", up[0].Size)
	}
	if up[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected symbol: %s", up[0].Symbol)
	}

	long := &model.PositionSnapshot{Symbol: "BTCUSDT", Side: enum.PositionSideLong, Size: 1}
	exit := feedCloses(t, d, trendCloses(100, -0.5, 40), long)
	if len(exit) != 1 {
		t.Fatalf("expected one exit on turn down, got: %+v", exit)
	}
	if exit[0].Side != enum.OrderSideSell {
		t.Fatalf("unexpected exit side: %s", exit[0].Side)
	}
	if exit[0].Size != 2 {
		t.Fatalf("flip should cover the long and open the short, got size: %f", exit[0].Size)
	}
}

func TestTrixSkipsCrossAgainstExistingExposure(t *testing.T) {
	d, err := NewTrixDecider("BTCUSDT", TrixConfig{Period: 3, SignalPeriod: 2, OrderSize: 1})
	if err != nil {
		t.Fatalf("new decider, err: %+v", err)
	}

	long := &model.PositionSnapshot{Symbol: "BTCUSDT", Side: enum.PositionSideLong, Size: 2}
	feedCloses(t, d, trendCloses(100, -0.5, 40), long)
	intents := feedCloses(t, d, trendCloses(80, 0.5, 40), long)
	if len(intents) != 0 {
		t.Fatalf("already long, cross up must not add: %+v", intents)
	}
}

func TestTrixIgnoresNonCandleInput(t *testing.T) {
	d, err := NewTrixDecider("BTCUSDT", TrixConfig{Period: 3, SignalPeriod: 2, OrderSize: 1})
	if err != nil {
		t.Fatalf("new decider, err: %+v", err)
	}
	tick := model.PriceSnapshot{Symbol: "BTCUSDT", Last: 100}
	if _, ok := d.Decide(Input{Tick: &tick}); ok {
		t.Fatal("tick-only input must not trade")
	}
}

func TestTrixConfigValidation(t *testing.T) {
	cases := []struct {
		name   string
		symbol string
		cfg    TrixConfig
	}{
		{"empty symbol", "", TrixConfig{Period: 3, SignalPeriod: 2, OrderSize: 1}},
		{"period too small", "BTCUSDT", TrixConfig{Period: 1, SignalPeriod: 2, OrderSize: 1}},
		{"signal too small", "BTCUSDT", TrixConfig{Period: 3, SignalPeriod: 0, OrderSize: 1}},
		{"size not positive", "BTCUSDT", TrixConfig{Period: 3, SignalPeriod: 2, OrderSize: 0}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := NewTrixDecider(c.symbol, c.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
