package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"main/internal/bus"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/risk"
)

type capturingExecutor struct {
	mu      sync.Mutex
	intents []model.OrderIntent
	results chan model.OrderResult
}

func newCapturingExecutor() *capturingExecutor {
	return &capturingExecutor{results: make(chan model.OrderResult, 8)}
}

func (e *capturingExecutor) Submit(ctx context.Context, intent model.OrderIntent) error {
	e.mu.Lock()
	e.intents = append(e.intents, intent)
	e.mu.Unlock()
	return nil
}

func (e *capturingExecutor) Results() <-chan model.OrderResult {
	return e.results
}

func (e *capturingExecutor) submitted() []model.OrderIntent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.OrderIntent(nil), e.intents...)
}

// recordingDecider trades on every candle and records what it saw.
type recordingDecider struct {
	mu     sync.Mutex
	inputs []Input
	panics int
}

func (d *recordingDecider) Decide(in Input) (model.OrderIntent, bool) {
	d.mu.Lock()
	d.inputs = append(d.inputs, in)
	remaining := d.panics
	if remaining > 0 {
		d.panics--
	}
	d.mu.Unlock()

	if remaining > 0 {
		panic("decider bug")
	}
	return model.OrderIntent{
		Symbol: "BTCUSDT",
		Side:   enum.OrderSideBuy,
		Type:   enum.OrderTypeMarket,
		Size:   1,
	}, true
}

func (d *recordingDecider) seen() []Input {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Input(nil), d.inputs...)
}

type runnerFixture struct {
	runner    *Runner
	ticks     *bus.Queue[model.PriceSnapshot]
	candles   *bus.Queue[model.Candle]
	positions *bus.Queue[model.PositionSnapshot]
	executor  *capturingExecutor
	decider   *recordingDecider
	metrics   *obs.Metrics
}

func newRunnerFixture(t *testing.T, riskCfg risk.Config) *runnerFixture {
	t.Helper()
	f := &runnerFixture{
		ticks:     bus.NewQueue[model.PriceSnapshot](16, bus.OverflowDropOldest),
		candles:   bus.NewQueue[model.Candle](16, bus.OverflowBlock),
		positions: bus.NewQueue[model.PositionSnapshot](16, bus.OverflowDropOldest),
		executor:  newCapturingExecutor(),
		decider:   &recordingDecider{},
		metrics:   obs.NewMetrics(),
	}
	runner, err := NewRunner(
		RunnerConfig{Symbol: "BTCUSDT", PollTimeout: 20 * time.Millisecond},
		f.ticks, f.candles, f.positions,
		f.decider,
		risk.NewEngine(riskCfg),
		f.executor,
		obs.NewIDGenerator(1),
		f.metrics,
	)
	if err != nil {
		t.Fatalf("new runner, err: %+v", err)
	}
	f.runner = runner
	return f
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestRunnerMergesLatestBeforeDeciding(t *testing.T) {
	f := newRunnerFixture(t, risk.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	background := context.Background()
	for i := 1; i <= 3; i++ {
		_ = f.ticks.Push(background, model.PriceSnapshot{Symbol: "BTCUSDT", Last: float64(100 + i)})
	}
	_ = f.positions.Push(background, model.PositionSnapshot{Symbol: "BTCUSDT", Side: enum.PositionSideLong, Size: 1})
	_ = f.positions.Push(background, model.PositionSnapshot{Symbol: "BTCUSDT", Side: enum.PositionSideLong, Size: 2})
	_ = f.candles.Push(background, model.Candle{Symbol: "BTCUSDT", Close: 103})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.runner.Run(ctx)
	}()

	waitFor(t, 2*time.Second, func() bool { return len(f.executor.submitted()) == 1 })

	inputs := f.decider.seen()
	if len(inputs) != 1 {
		t.Fatalf("unexpected decide count: %d", len(inputs))
	}
	in := inputs[0]
	if in.Tick == nil || in.Tick.Last != 103 {
		t.Fatalf("decider did not see latest tick: %+v", in.Tick)
	}
	if in.Position == nil || in.Position.Size != 2 {
		t.Fatalf("decider did not see latest position: %+v", in.Position)
	}
	if in.Candle == nil || in.Candle.Close != 103 {
		t.Fatalf("decider did not see the candle: %+v", in.Candle)
	}

	intent := f.executor.submitted()[0]
	if intent.ClientOrderID == 0 {
		t.Fatal("intent missing client order id")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunnerRiskDenialStopsSubmission(t *testing.T) {
	f := newRunnerFixture(t, risk.Config{KillSwitch: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = f.candles.Push(context.Background(), model.Candle{Symbol: "BTCUSDT", Close: 100})
	go func() { _ = f.runner.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return f.metrics.Count(obs.CounterRiskDenied) == 1 })
	if got := f.executor.submitted(); len(got) != 0 {
		t.Fatalf("denied intent was submitted: %+v", got)
	}
}

func TestRunnerDisablesDeciderAfterPanic(t *testing.T) {
	f := newRunnerFixture(t, risk.Config{})
	f.decider.panics = 1
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	background := context.Background()
	_ = f.candles.Push(background, model.Candle{Symbol: "BTCUSDT", Close: 100})
	_ = f.candles.Push(background, model.Candle{Symbol: "BTCUSDT", Close: 101})

	candles := make(chan model.Candle, 4)
	f.runner.cfg.OnCandle = func(c model.Candle) { candles <- c }

	go func() { _ = f.runner.Run(ctx) }()

	// The panic on the first candle benches the decider; the second
	// candle is still drained but no longer reaches Decide.
	deadline := time.After(2 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-candles:
		case <-deadline:
			t.Fatalf("only %d candles drained after panic", i)
		}
	}
	if got := len(f.decider.seen()); got != 1 {
		t.Fatalf("benched decider was invoked again, decide count: %d", got)
	}
	if got := f.executor.submitted(); len(got) != 0 {
		t.Fatalf("panicked cycle produced submissions: %+v", got)
	}
}

func TestRunnerStopsWhenCandleQueueCloses(t *testing.T) {
	f := newRunnerFixture(t, risk.Config{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.runner.Run(context.Background())
	}()

	f.candles.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop on closed queue")
	}
}

func TestRunnerConstructorValidation(t *testing.T) {
	ticks := bus.NewQueue[model.PriceSnapshot](1, bus.OverflowDropOldest)
	candles := bus.NewQueue[model.Candle](1, bus.OverflowBlock)
	positions := bus.NewQueue[model.PositionSnapshot](1, bus.OverflowDropOldest)

	if _, err := NewRunner(RunnerConfig{}, ticks, candles, positions,
		&recordingDecider{}, risk.NewEngine(risk.Config{}), newCapturingExecutor(),
		obs.NewIDGenerator(1), obs.NewMetrics()); err == nil {
		t.Fatal("expected error for empty symbol")
	}
	if _, err := NewRunner(RunnerConfig{Symbol: "BTCUSDT"}, ticks, candles, positions,
		nil, risk.NewEngine(risk.Config{}), newCapturingExecutor(),
		obs.NewIDGenerator(1), obs.NewMetrics()); err == nil {
		t.Fatal("expected error for nil decider")
	}
}
