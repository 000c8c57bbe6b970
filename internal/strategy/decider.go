package strategy

import (
	"github.com/yanun0323/errors"

	"main/internal/model"
	"main/internal/model/enum"
)

// Input carries the freshest view the runner has merged for a symbol.
// Candle is non-nil only on the cycle a bucket closed; Tick and
// Position hold the latest observed values and may be nil before the
// first update arrives.
type Input struct {
	Tick     *model.PriceSnapshot
	Candle   *model.Candle
	Position *model.PositionSnapshot
}

// Decider produces at most one order intent per input. The runner
// fills in the client order ID before submission.
type Decider interface {
	Decide(in Input) (model.OrderIntent, bool)
}

// ema is a plain exponential moving average with SMA seeding.
type ema struct {
	period int
	alpha  float64
	seed   []float64
	value  float64
	ready  bool
}

func newEMA(period int) *ema {
	return &ema{
		period: period,
		alpha:  2 / (float64(period) + 1),
		seed:   make([]float64, 0, period),
	}
}

func (e *ema) update(v float64) (float64, bool) {
	if !e.ready {
		e.seed = append(e.seed, v)
		if len(e.seed) < e.period {
			return 0, false
		}
		var sum float64
		for _, s := range e.seed {
			sum += s
		}
		e.value = sum / float64(e.period)
		e.seed = nil
		e.ready = true
		return e.value, true
	}
	e.value += e.alpha * (v - e.value)
	return e.value, true
}

// TrixConfig parametrizes the triple-EMA oscillator.
type TrixConfig struct {
	Period       int     // EMA period for all three stages
	SignalPeriod int     // EMA period of the signal line
	OrderSize    float64 // base size per entry
}

// TrixDecider trades crossovers of the TRIX oscillator against its
// signal line. TRIX is the one-bar rate of change of a triple-smoothed
// EMA of candle closes, so it reacts to trend turns while filtering
// single-bar noise. A cross above the signal line while not long opens
// or flips to a long of OrderSize; a cross below while not short does
// the mirror.
type TrixDecider struct {
	cfg    TrixConfig
	symbol string

	ema1 *ema
	ema2 *ema
	ema3 *ema
	sig  *ema

	prevEMA3 float64
	hasEMA3  bool

	prevDiff float64
	hasDiff  bool
}

// NewTrixDecider validates the config and builds a decider for one symbol.
func NewTrixDecider(symbol string, cfg TrixConfig) (*TrixDecider, error) {
	if symbol == "" {
		return nil, errors.New("strategy: empty symbol")
	}
	if cfg.Period < 2 {
		return nil, errors.Errorf("strategy: trix period too small: %d", cfg.Period)
	}
	if cfg.SignalPeriod < 1 {
		return nil, errors.Errorf("strategy: trix signal period too small: %d", cfg.SignalPeriod)
	}
	if cfg.OrderSize <= 0 {
		return nil, errors.Errorf("strategy: order size must be positive: %f", cfg.OrderSize)
	}
	return &TrixDecider{
		cfg:    cfg,
		symbol: symbol,
		ema1:   newEMA(cfg.Period),
		ema2:   newEMA(cfg.Period),
		ema3:   newEMA(cfg.Period),
		sig:    newEMA(cfg.SignalPeriod),
	}, nil
}

// Decide consumes a closed candle and emits an intent on a crossover.
func (d *TrixDecider) Decide(in Input) (model.OrderIntent, bool) {
	var intent model.OrderIntent
	if in.Candle == nil {
		return intent, false
	}

	trix, ok := d.updateTrix(in.Candle.Close)
	if !ok {
		return intent, false
	}
	signal, ok := d.sig.update(trix)
	if !ok {
		return intent, false
	}

	diff := trix - signal
	defer func() {
		d.prevDiff = diff
		d.hasDiff = true
	}()
	if !d.hasDiff {
		return intent, false
	}

	crossedUp := d.prevDiff <= 0 && diff > 0
	crossedDown := d.prevDiff >= 0 && diff < 0
	if !crossedUp && !crossedDown {
		return intent, false
	}

	position := 0.0
	if in.Position != nil {
		position = in.Position.SignedSize()
	}

	switch {
	case crossedUp && position <= 0:
		intent = model.OrderIntent{
			Symbol: d.symbol,
			Side:   enum.OrderSideBuy,
			Type:   enum.OrderTypeMarket,
			Size:   d.cfg.OrderSize - position,
			Reason: "trix crossed above signal",
		}
	case crossedDown && position >= 0:
		intent = model.OrderIntent{
			Symbol: d.symbol,
			Side:   enum.OrderSideSell,
			Type:   enum.OrderTypeMarket,
			Size:   d.cfg.OrderSize + position,
			Reason: "trix crossed below signal",
		}
	default:
		return intent, false
	}
	return intent, true
}

func (d *TrixDecider) updateTrix(closePrice float64) (float64, bool) {
	v1, ok := d.ema1.update(closePrice)
	if !ok {
		return 0, false
	}
	v2, ok := d.ema2.update(v1)
	if !ok {
		return 0, false
	}
	v3, ok := d.ema3.update(v2)
	if !ok {
		return 0, false
	}

	defer func() {
		d.prevEMA3 = v3
		d.hasEMA3 = true
	}()
	if !d.hasEMA3 || d.prevEMA3 == 0 {
		return 0, false
	}
	return (v3 - d.prevEMA3) / d.prevEMA3 * 100, true
}
