package pipeline

import (
	"time"

	"main/internal/model"
)

// CandleBuilder accumulates ticks into fixed-granularity OHLCV buckets.
//
// Gap policy: when a tick lands past the open bucket, the open bucket is
// closed first, then every fully-skipped bucket in between is emitted as
// a carry-forward candle (O=H=L=C=previous close, zero volume,
// Carried=true). Strategies therefore see exactly one candle per closed
// bucket, never a silent hole. The very first tick only opens the first
// bucket; nothing is emitted until a boundary is crossed.
type CandleBuilder struct {
	symbol      string
	granularity time.Duration
	current     *model.Candle
}

// NewCandleBuilder creates a builder for one symbol.
func NewCandleBuilder(symbol string, granularity time.Duration) *CandleBuilder {
	if granularity <= 0 {
		granularity = time.Minute
	}
	return &CandleBuilder{symbol: symbol, granularity: granularity}
}

// Apply feeds one tick and returns the candles it closed, oldest first.
func (b *CandleBuilder) Apply(tick model.PriceSnapshot) []model.Candle {
	ts := tick.EventTsNano
	if ts == 0 {
		ts = tick.RecvTsNano
	}
	at := time.Unix(0, ts).UTC()
	bucketStart := at.Truncate(b.granularity)

	if b.current == nil {
		b.current = b.open(bucketStart, tick)
		return nil
	}

	if !bucketStart.After(b.current.Start) {
		// Same bucket, or a late tick; both fold into the open bucket.
		b.accumulate(tick)
		return nil
	}

	closed := make([]model.Candle, 0, 1)
	closed = append(closed, *b.current)
	lastClose := b.current.Close

	for start := b.current.End; start.Before(bucketStart); start = start.Add(b.granularity) {
		closed = append(closed, model.Candle{
			Symbol:  b.symbol,
			Start:   start,
			End:     start.Add(b.granularity),
			Open:    lastClose,
			High:    lastClose,
			Low:     lastClose,
			Close:   lastClose,
			Carried: true,
		})
	}

	b.current = b.open(bucketStart, tick)
	return closed
}

// Flush closes and returns the in-progress bucket, if any.
func (b *CandleBuilder) Flush() (model.Candle, bool) {
	if b.current == nil {
		return model.Candle{}, false
	}
	candle := *b.current
	b.current = nil
	return candle, true
}

func (b *CandleBuilder) open(start time.Time, tick model.PriceSnapshot) *model.Candle {
	return &model.Candle{
		Symbol:    b.symbol,
		Start:     start,
		End:       start.Add(b.granularity),
		Open:      tick.Last,
		High:      tick.Last,
		Low:       tick.Last,
		Close:     tick.Last,
		Volume:    tick.Volume24h,
		TickCount: 1,
	}
}

func (b *CandleBuilder) accumulate(tick model.PriceSnapshot) {
	c := b.current
	if tick.Last > c.High {
		c.High = tick.Last
	}
	if tick.Last < c.Low {
		c.Low = tick.Last
	}
	c.Close = tick.Last
	c.Volume = tick.Volume24h
	c.TickCount++
}
