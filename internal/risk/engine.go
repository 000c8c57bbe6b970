package risk

import (
	"time"

	"main/internal/model"
	"main/internal/model/enum"
)

// Config defines simple risk limits.
type Config struct {
	KillSwitch       bool          `json:"killSwitch"`
	MaxOrderSize     float64       `json:"maxOrderSize"`
	MaxOrderNotional float64       `json:"maxOrderNotional"`
	MaxPosition      float64       `json:"maxPosition"`
	OrderRateLimit   int           `json:"orderRateLimit"`
	OrderRateWindow  time.Duration `json:"orderRateWindow"`
}

// Action is the risk verdict for one intent.
type Action uint8

const (
	ActionAllow Action = iota
	ActionDeny
)

// Reason explains a denial.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonKillSwitch
	ReasonRateLimit
	ReasonMaxSize
	ReasonMaxNotional
	ReasonPositionLimit
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonKillSwitch:
		return "kill_switch"
	case ReasonRateLimit:
		return "rate_limit"
	case ReasonMaxSize:
		return "max_size"
	case ReasonMaxNotional:
		return "max_notional"
	case ReasonPositionLimit:
		return "position_limit"
	default:
		return "unknown"
	}
}

// StateView provides the strategy's current view at evaluation time.
type StateView struct {
	Position       float64 // signed: long positive, short negative
	ReferencePrice float64
	Now            int64
}

// Decision is the evaluation result.
type Decision struct {
	Action Action
	Reason Reason
}

func (d Decision) Allowed() bool {
	return d.Action == ActionAllow
}

// Engine evaluates risk decisions for one symbol's strategy stage. It is
// called from a single goroutine, so the rate window needs no lock.
type Engine struct {
	cfg             Config
	rateWindowStart int64
	rateCount       int
}

// NewEngine creates a risk engine with static limits.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate applies the configured checks to an order intent.
func (e *Engine) Evaluate(intent model.OrderIntent, state StateView) Decision {
	now := state.Now
	if now == 0 {
		now = time.Now().UTC().UnixNano()
	}

	if e.cfg.KillSwitch {
		return Decision{Action: ActionDeny, Reason: ReasonKillSwitch}
	}

	if e.cfg.OrderRateLimit > 0 && e.cfg.OrderRateWindow > 0 {
		window := int64(e.cfg.OrderRateWindow)
		if e.rateWindowStart == 0 || now-e.rateWindowStart >= window {
			e.rateWindowStart = now
			e.rateCount = 0
		}
		e.rateCount++
		if e.rateCount > e.cfg.OrderRateLimit {
			return Decision{Action: ActionDeny, Reason: ReasonRateLimit}
		}
	}

	if e.cfg.MaxOrderSize > 0 && intent.Size > e.cfg.MaxOrderSize {
		return Decision{Action: ActionDeny, Reason: ReasonMaxSize}
	}

	if e.cfg.MaxOrderNotional > 0 {
		price := intent.Price
		if intent.Type == enum.OrderTypeMarket || price <= 0 {
			price = state.ReferencePrice
		}
		if price > 0 && price*intent.Size > e.cfg.MaxOrderNotional {
			return Decision{Action: ActionDeny, Reason: ReasonMaxNotional}
		}
	}

	if e.cfg.MaxPosition > 0 {
		next := applySide(state.Position, intent.Side, intent.Size)
		if abs(next) > e.cfg.MaxPosition {
			return Decision{Action: ActionDeny, Reason: ReasonPositionLimit}
		}
	}

	return Decision{Action: ActionAllow, Reason: ReasonNone}
}

func applySide(position float64, side enum.OrderSide, size float64) float64 {
	switch side {
	case enum.OrderSideBuy:
		return position + size
	case enum.OrderSideSell:
		return position - size
	default:
		return position
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
