package pipeline

import (
	"testing"
	"time"

	"main/internal/model"
)

func tickAt(t time.Time, price float64) model.PriceSnapshot {
	return model.PriceSnapshot{Symbol: "BTCUSDT", Last: price, EventTsNano: t.UnixNano()}
}

func TestFirstTickOpensWithoutEmitting(t *testing.T) {
	b := NewCandleBuilder("BTCUSDT", time.Minute)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	if closed := b.Apply(tickAt(base, 100)); len(closed) != 0 {
		t.Fatalf("first tick must not emit, got %d candles", len(closed))
	}
}

func TestThreeBucketsEmitThreeCandles(t *testing.T) {
	b := NewCandleBuilder("BTCUSDT", time.Minute)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	// Deterministic ticks spanning exactly 3 buckets with no gaps, plus
	// a bucket-4 opener to close bucket 3.
	var emitted []model.Candle
	ticks := []struct {
		offset time.Duration
		price  float64
	}{
		{0, 100}, {20 * time.Second, 105}, {40 * time.Second, 95},
		{60 * time.Second, 96}, {80 * time.Second, 99},
		{120 * time.Second, 101}, {150 * time.Second, 103},
		{180 * time.Second, 104},
	}
	for _, tk := range ticks {
		emitted = append(emitted, b.Apply(tickAt(base.Add(tk.offset), tk.price))...)
	}

	if len(emitted) != 3 {
		t.Fatalf("expected exactly 3 candles, got %d: %+v", len(emitted), emitted)
	}

	want := []struct {
		open, high, low, close float64
		ticks                  int
	}{
		{100, 105, 95, 95, 3},
		{96, 99, 96, 99, 2},
		{101, 103, 101, 103, 2},
	}
	for i, w := range want {
		c := emitted[i]
		if c.Carried {
			t.Fatalf("candle %d unexpectedly carried", i)
		}
		if c.Open != w.open || c.High != w.high || c.Low != w.low || c.Close != w.close {
			t.Fatalf("candle %d OHLC mismatch: %+v", i, c)
		}
		if c.TickCount != w.ticks {
			t.Fatalf("candle %d tick count: got %d want %d", i, c.TickCount, w.ticks)
		}
		wantStart := base.Add(time.Duration(i) * time.Minute)
		if !c.Start.Equal(wantStart) || !c.End.Equal(wantStart.Add(time.Minute)) {
			t.Fatalf("candle %d bounds mismatch: %v..%v", i, c.Start, c.End)
		}
	}
}

func TestGapEmitsCarryForwardCandles(t *testing.T) {
	b := NewCandleBuilder("BTCUSDT", time.Minute)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	b.Apply(tickAt(base, 100))
	b.Apply(tickAt(base.Add(30*time.Second), 110))
	// Next tick skips buckets 2 and 3 entirely.
	closed := b.Apply(tickAt(base.Add(3*time.Minute+5*time.Second), 120))

	if len(closed) != 3 {
		t.Fatalf("expected bucket1 + 2 carried, got %d: %+v", len(closed), closed)
	}
	if closed[0].Carried || closed[0].Close != 110 {
		t.Fatalf("bucket1 mismatch: %+v", closed[0])
	}
	for i := 1; i <= 2; i++ {
		c := closed[i]
		if !c.Carried {
			t.Fatalf("bucket%d not marked carried: %+v", i+1, c)
		}
		if c.Open != 110 || c.Close != 110 || c.High != 110 || c.Low != 110 {
			t.Fatalf("carried candle must hold last close: %+v", c)
		}
		if c.TickCount != 0 || c.Volume != 0 {
			t.Fatalf("carried candle must be empty: %+v", c)
		}
	}
	// At most one candle per closed bucket: exactly one per gap bucket.
	if !closed[1].Start.Equal(base.Add(time.Minute)) || !closed[2].Start.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("carried candle bounds: %+v / %+v", closed[1], closed[2])
	}
}

func TestLateTickFoldsIntoOpenBucket(t *testing.T) {
	b := NewCandleBuilder("BTCUSDT", time.Minute)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	b.Apply(tickAt(base.Add(65*time.Second), 100))
	if closed := b.Apply(tickAt(base.Add(50*time.Second), 90)); len(closed) != 0 {
		t.Fatalf("late tick must not close a bucket, got %d", len(closed))
	}

	candle, ok := b.Flush()
	if !ok {
		t.Fatal("expected open bucket")
	}
	if candle.Low != 90 || candle.TickCount != 2 {
		t.Fatalf("late tick not folded: %+v", candle)
	}
}

func TestFlushEmpty(t *testing.T) {
	b := NewCandleBuilder("BTCUSDT", time.Minute)
	if _, ok := b.Flush(); ok {
		t.Fatal("flush on empty builder should report nothing")
	}
}
