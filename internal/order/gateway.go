// Package order turns strategy intents into exchange submissions.
//
// Submission is fire-and-forget from the strategy stage's point of view:
// Submit enqueues and returns, a pump goroutine performs the wire call,
// and outcomes come back asynchronously on Results. A slow or failing
// exchange therefore never stalls a decision cycle.
package order

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
)

// Delegator is the wire-level collaborator that actually places orders.
type Delegator interface {
	Place(ctx context.Context, intent model.OrderIntent) (model.OrderResult, error)
}

// Executor is the submission surface the strategy stage consumes.
type Executor interface {
	Submit(ctx context.Context, intent model.OrderIntent) error
	Results() <-chan model.OrderResult
}

// GatewayConfig controls gateway buffering and timeouts.
type GatewayConfig struct {
	QueueCapacity int           // pending submission queue; <=0 means 64
	ResultBuffer  int           // async result channel; <=0 means 64
	SubmitTimeout time.Duration // per wire call; <=0 means 10s
}

// Gateway queues intents, places them through the delegator, and
// reports results asynchronously. Pending intents are tracked by client
// order ID until a terminal result arrives.
type Gateway struct {
	cfg       GatewayConfig
	delegator Delegator
	metrics   *obs.Metrics

	queue   *bus.Queue[model.OrderIntent]
	results chan model.OrderResult

	mu      sync.Mutex
	pending map[uint64]model.OrderIntent
}

// NewGateway creates a gateway around a delegator.
func NewGateway(cfg GatewayConfig, delegator Delegator, metrics *obs.Metrics) (*Gateway, error) {
	if delegator == nil {
		return nil, errors.New("order: nil delegator")
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 64
	}
	if cfg.ResultBuffer <= 0 {
		cfg.ResultBuffer = 64
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 10 * time.Second
	}
	return &Gateway{
		cfg:       cfg,
		delegator: delegator,
		metrics:   metrics,
		queue:     bus.NewQueue[model.OrderIntent](cfg.QueueCapacity, bus.OverflowBlock),
		results:   make(chan model.OrderResult, cfg.ResultBuffer),
		pending:   make(map[uint64]model.OrderIntent),
	}, nil
}

// Submit registers the intent and enqueues it for placement.
func (g *Gateway) Submit(ctx context.Context, intent model.OrderIntent) error {
	if intent.ClientOrderID == 0 {
		return errors.New("order: missing client order id")
	}

	g.mu.Lock()
	g.pending[intent.ClientOrderID] = intent
	g.mu.Unlock()

	if err := g.queue.Push(ctx, intent); err != nil {
		g.resolve(intent.ClientOrderID)
		return errors.Wrap(err, "enqueue intent")
	}
	return nil
}

// Results exposes the asynchronous outcome channel.
func (g *Gateway) Results() <-chan model.OrderResult {
	return g.results
}

// PendingCount returns how many intents await a terminal result.
func (g *Gateway) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Run pumps queued intents through the delegator until ctx ends.
func (g *Gateway) Run(ctx context.Context) error {
	for {
		intent, err := g.queue.Pop(ctx, g.cfg.SubmitTimeout)
		switch err {
		case nil:
		case bus.ErrPopTimeout:
			continue
		case bus.ErrQueueClosed:
			return nil
		default:
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		g.place(ctx, intent)
	}
}

func (g *Gateway) place(ctx context.Context, intent model.OrderIntent) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.SubmitTimeout)
	started := time.Now()
	result, err := g.delegator.Place(callCtx, intent)
	cancel()
	g.metrics.ObserveSubmit(time.Since(started))

	if err != nil {
		result = model.OrderResult{
			ClientOrderID: intent.ClientOrderID,
			Symbol:        intent.Symbol,
			Status:        enum.OrderStatusRejected,
			Reason:        err.Error(),
			TsNano:        time.Now().UnixNano(),
		}
	}

	g.resolve(result.ClientOrderID)
	if result.Rejected() {
		g.metrics.Inc(obs.CounterRejected)
	} else {
		g.metrics.Inc(obs.CounterSubmitted)
	}

	select {
	case g.results <- result:
	default:
		// Nobody is draining results; drop rather than stall the pump.
		logs.Warnf("order result dropped, symbol: %s, clientOrderID: %d", result.Symbol, result.ClientOrderID)
	}
}

func (g *Gateway) resolve(clientOrderID uint64) {
	g.mu.Lock()
	delete(g.pending, clientOrderID)
	g.mu.Unlock()
}
