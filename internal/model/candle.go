package model

import "time"

// Candle is an OHLCV aggregate for one granularity bucket.
//
// Carried marks a bucket that closed without any tick: its prices are the
// previous close carried forward and its volume is zero. Downstream
// strategies must see one candle per closed bucket, gaps included.
type Candle struct {
	Symbol    string
	Start     time.Time
	End       time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	TickCount int
	Carried   bool
}
