/*
Core wires the live trading pipeline together.

# Module
  - shared state registry: last-write-wins snapshot cells per symbol and kind
  - market feed adapter: single fan-in from the exchange stream into the registry
  - price & position stages: per-symbol candle building and position normalization
  - strategy runners: per-symbol decision loops guarded by the risk engine

# Source
 1. ticker & position pushes from the exchange websocket
 2. synthetic market data from the simulator in paper mode

# Produce
  - order intents to the order gateway
  - closed candles and order results to the journal

# Sharded
  - tradingPair
*/
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/feed"
	"main/internal/journal"
	"main/internal/model"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/order"
	"main/internal/pipeline"
	"main/internal/registry"
	"main/internal/risk"
	"main/internal/strategy"
)

// Options carry the pre-built collaborators the app composes.
type Options struct {
	Config  ops.Config
	Stream  feed.Stream
	Gateway *order.Gateway
	Journal *journal.Journal // nil disables persistence
	Metrics *obs.Metrics

	FeedMaxRetries  int
	FeedBackoff     feed.Backoff  // zero value falls back to the defaults
	ShutdownTimeout time.Duration // bound on the final join; <=0 means 10s
}

type symbolShard struct {
	ticks     *bus.Queue[model.PriceSnapshot]
	candles   *bus.Queue[model.Candle]
	positions *bus.Queue[model.PositionSnapshot]

	price    *pipeline.PriceStage
	position *pipeline.PositionStage
	runner   *strategy.Runner
}

// App owns every pipeline goroutine and their shutdown order.
type App struct {
	opts    Options
	reg     *registry.Registry
	adapter *feed.Adapter
	shards  map[string]*symbolShard
	metrics *obs.Metrics
}

// New validates the options and builds every per-symbol shard.
func New(opts Options) (*App, error) {
	if opts.Stream == nil {
		return nil, errors.New("core: nil stream")
	}
	if opts.Gateway == nil {
		return nil, errors.New("core: nil order gateway")
	}
	if len(opts.Config.Symbols) == 0 {
		return nil, errors.New("core: no symbols configured")
	}
	if opts.Metrics == nil {
		opts.Metrics = obs.NewMetrics()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	symbols := opts.Config.SymbolNames()
	reg, err := registry.New(symbols)
	if err != nil {
		return nil, errors.Wrap(err, "build registry")
	}

	backoff := opts.FeedBackoff
	if backoff == (feed.Backoff{}) {
		backoff = feed.DefaultBackoff()
	}
	adapter, err := feed.NewAdapter(feed.Config{
		Symbols:    symbols,
		Backoff:    backoff,
		MaxRetries: opts.FeedMaxRetries,
	}, opts.Stream, reg, opts.Metrics)
	if err != nil {
		return nil, errors.Wrap(err, "build feed adapter")
	}

	ids := obs.NewIDGenerator(uint64(time.Now().UnixNano()))
	shards := make(map[string]*symbolShard, len(symbols))
	for symbol, settings := range opts.Config.Symbols {
		shard, err := buildShard(symbol, settings, reg, opts, ids)
		if err != nil {
			return nil, errors.Wrapf(err, "build shard, symbol: %s", symbol)
		}
		shards[symbol] = shard
	}

	return &App{
		opts:    opts,
		reg:     reg,
		adapter: adapter,
		shards:  shards,
		metrics: opts.Metrics,
	}, nil
}

func buildShard(symbol string, settings ops.SymbolSettings, reg *registry.Registry, opts Options, ids *obs.IDGenerator) (*symbolShard, error) {
	ticks := bus.NewQueue[model.PriceSnapshot](settings.QueueCapacity, settings.OverflowPolicy())
	candles := bus.NewQueue[model.Candle](settings.QueueCapacity, bus.OverflowBlock)
	positions := bus.NewQueue[model.PositionSnapshot](settings.QueueCapacity, settings.OverflowPolicy())

	stageCfg := pipeline.StageConfig{
		Symbol:         symbol,
		Granularity:    settings.Granularity.Std(),
		StaleThreshold: settings.StaleThreshold,
	}

	decider, err := strategy.NewTrixDecider(symbol, strategy.TrixConfig{
		Period:       settings.TrixPeriod,
		SignalPeriod: settings.TrixSignalPeriod,
		OrderSize:    settings.OrderSize,
	})
	if err != nil {
		return nil, err
	}

	runner, err := strategy.NewRunner(
		strategy.RunnerConfig{Symbol: symbol, OnCandle: opts.Journal.RecordCandle},
		ticks, candles, positions,
		decider,
		risk.NewEngine(settings.Risk),
		opts.Gateway,
		ids,
		opts.Metrics,
	)
	if err != nil {
		return nil, err
	}

	return &symbolShard{
		ticks:     ticks,
		candles:   candles,
		positions: positions,
		price:     pipeline.NewPriceStage(stageCfg, reg, ticks, candles, opts.Metrics),
		position:  pipeline.NewPositionStage(stageCfg, reg, positions, opts.Metrics),
		runner:    runner,
	}, nil
}

// Registry exposes the shared state for inspection.
func (a *App) Registry() *registry.Registry {
	return a.reg
}

// Run starts every goroutine and blocks until ctx ends or a fatal
// error surfaces. A dead feed or a crashed stage cancels everything;
// cooperative stages then drain within their poll timeouts and the
// final join is bounded by ShutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fatal := make(chan error, 1)
	report := func(err error) {
		if err == nil {
			return
		}
		select {
		case fatal <- err:
		default:
		}
		cancel()
	}

	var wg sync.WaitGroup
	spawn := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil {
				report(fmt.Errorf("%s: %w", name, err))
			}
		}()
	}

	spawn("feed adapter", a.adapter.Run)
	spawn("counter dump", a.dumpCounters)
	spawn("order gateway", a.opts.Gateway.Run)
	if a.opts.Journal != nil {
		spawn("journal", a.opts.Journal.Run)
	}
	spawn("result pump", a.pumpResults)

	for symbol, shard := range a.shards {
		spawn("price stage "+symbol, shard.price.Run)
		spawn("position stage "+symbol, shard.position.Run)
		spawn("strategy runner "+symbol, shard.runner.Run)
	}

	logs.Infof("pipeline started, symbols: %d", len(a.shards))

	<-ctx.Done()

	var fatalErr error
	select {
	case fatalErr = <-fatal:
		logs.Errorf("pipeline stopping on fatal error, err: %+v", fatalErr)
	default:
		logs.Info("pipeline stopping on shutdown signal")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()

	select {
	case <-done:
		logs.Info("pipeline stopped")
	case <-time.After(a.opts.ShutdownTimeout):
		logs.Errorf("pipeline join exceeded %s, exiting anyway", a.opts.ShutdownTimeout)
	}

	a.logCounters()
	return fatalErr
}

// pumpResults drains the gateway's async outcomes, logging and
// journaling each one.
func (a *App) pumpResults(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case result, ok := <-a.opts.Gateway.Results():
			if !ok {
				return nil
			}
			if result.Rejected() {
				logs.Warnf("order rejected, symbol: %s, clientOrderID: %d, reason: %s",
					result.Symbol, result.ClientOrderID, result.Reason)
			} else {
				logs.Infof("order accepted, symbol: %s, clientOrderID: %d, orderID: %s",
					result.Symbol, result.ClientOrderID, result.OrderID)
			}
			a.opts.Journal.RecordOrderResult(result)
		}
	}
}

// dumpCounters logs the pipeline counters once a minute.
func (a *App) dumpCounters(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.logCounters()
		}
	}
}

func (a *App) logCounters() {
	snapshot := a.metrics.Snapshot()
	for counter, count := range snapshot.Counts {
		if count == 0 {
			continue
		}
		logs.Infof("counter %s: %d", counter, count)
	}
}
