// Package sim provides a synthetic market/account stream for paper
// trading and tests. No credentials, no network; ticks are generated
// deterministically.
package sim

import (
	"context"
	"math"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/feed"
	"main/internal/model"
	"main/internal/model/enum"
)

// Config shapes the synthetic tick sequence.
type Config struct {
	Interval      time.Duration // spacing between ticks; <=0 means 100ms
	BasePrice     float64       // starting price; <=0 means 100
	Amplitude     float64       // sine swing around the base price
	Spread        float64       // half distance between bid and ask
	PositionEvery int           // emit a position snapshot every N ticks; <=0 disables
}

// Stream emits one tick per interval per symbol, cycling a sine wave so
// strategies see regular crossings.
type Stream struct {
	cfg Config
}

// NewStream creates a synthetic stream.
func NewStream(cfg Config) *Stream {
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	if cfg.BasePrice <= 0 {
		cfg.BasePrice = 100
	}
	if cfg.Amplitude <= 0 {
		cfg.Amplitude = cfg.BasePrice * 0.01
	}
	return &Stream{cfg: cfg}
}

// Subscribe starts the generator. The returned channel closes only when
// ctx ends; the synthetic transport never disconnects on its own.
func (s *Stream) Subscribe(ctx context.Context, symbols []string) (<-chan feed.Update, error) {
	if len(symbols) == 0 {
		return nil, errors.New("sim: empty symbol set")
	}

	out := make(chan feed.Update, 64)
	go s.run(ctx, symbols, out)
	return out, nil
}

// Close is a no-op; the generator stops with its context.
func (s *Stream) Close() {}

func (s *Stream) run(ctx context.Context, symbols []string, out chan<- feed.Update) {
	defer close(out)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	step := 0
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			step++
			for i, symbol := range symbols {
				price := s.priceAt(step, i)
				u := feed.Update{
					Symbol: symbol,
					Kind:   enum.SnapshotPrice,
					Price: model.PriceSnapshot{
						Symbol:      symbol,
						Last:        price,
						BidPrice:    price - s.cfg.Spread,
						AskPrice:    price + s.cfg.Spread,
						EventTsNano: now.UnixNano(),
						RecvTsNano:  now.UnixNano(),
					},
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}

				if s.cfg.PositionEvery > 0 && step%s.cfg.PositionEvery == 0 {
					p := feed.Update{
						Symbol: symbol,
						Kind:   enum.SnapshotPosition,
						Position: model.PositionSnapshot{
							Symbol:      symbol,
							Side:        enum.PositionSideFlat,
							EventTsNano: now.UnixNano(),
							RecvTsNano:  now.UnixNano(),
						},
					}
					select {
					case out <- p:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}
}

// priceAt offsets each symbol's wave so multi-symbol runs do not move in
// lockstep.
func (s *Stream) priceAt(step, symbolIndex int) float64 {
	phase := float64(step)/10 + float64(symbolIndex)
	return s.cfg.BasePrice + s.cfg.Amplitude*math.Sin(phase)
}
