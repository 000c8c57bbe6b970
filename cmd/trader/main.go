package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"main/internal/core"
	"main/internal/feed"
	"main/internal/feed/bitget"
	"main/internal/feed/sim"
	"main/internal/journal"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/order"
	orderbitget "main/internal/order/bitget"
	"main/pkg/conn"
)

type emptyLogger struct{}

func (emptyLogger) Infof(string, ...any)  {}
func (emptyLogger) Debugf(string, ...any) {}
func (emptyLogger) Errorf(string, ...any) {}

// paperDelegator accepts every order locally without touching the
// exchange. Used with -paper so strategies can run on synthetic data.
type paperDelegator struct{}

func (d paperDelegator) Place(ctx context.Context, intent model.OrderIntent) (model.OrderResult, error) {
	return model.OrderResult{
		ClientOrderID: intent.ClientOrderID,
		OrderID:       "PAPER-" + time.Now().Format("150405.000"),
		Symbol:        intent.Symbol,
		Status:        enum.OrderStatusAccepted,
		TsNano:        time.Now().UnixNano(),
	}, nil
}

func main() {
	configPath := flag.String("config", "param.json", "path to the symbol settings file")
	secretsPath := flag.String("secrets", "secrets.json", "path to the API credentials file")
	account := flag.String("account", ops.DefaultAccount, "account entry inside the secrets file")
	paper := flag.Bool("paper", false, "run on the synthetic stream and accept orders locally")
	dbDSN := flag.String("db", "", "PostgreSQL connection string for journaling (empty disables)")
	pyroscopeURL := flag.String("pyroscope-url", "", "pyroscope server address (empty disables)")
	feedRetries := flag.Int("feed-retries", 5, "consecutive failed reconnects before giving up")
	flag.Parse()

	if err := run(*configPath, *secretsPath, *account, *paper, *dbDSN, *pyroscopeURL, *feedRetries); err != nil {
		logs.Errorf("trader exited, err: %+v", err)
		os.Exit(1)
	}
}

func run(configPath, secretsPath, account string, paper bool, dbDSN, pyroscopeURL string, feedRetries int) error {
	cfg, err := ops.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if pyroscopeURL != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "trader",
			ServerAddress:   pyroscopeURL,
			Tags: map[string]string{
				"env": "live",
			},
			Logger: emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return err
		}
		defer func() { _ = profiler.Stop() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := obs.NewMetrics()

	var (
		stream    feed.Stream
		delegator order.Delegator
	)
	if paper {
		stream = sim.NewStream(sim.Config{
			Interval:      100 * time.Millisecond,
			BasePrice:     100,
			Amplitude:     5,
			Spread:        0.05,
			PositionEvery: 50,
		})
		delegator = paperDelegator{}
		logs.Info("paper mode, synthetic stream and local fills")
	} else {
		secrets, err := ops.LoadSecrets(secretsPath, account)
		if err != nil {
			return err
		}
		stream = bitget.NewStream(bitget.Credentials{
			APIKey:     secrets.APIKey,
			SecretKey:  secrets.SecretKey,
			Passphrase: secrets.Passphrase,
		})
		delegator = orderbitget.NewDelegator(
			&http.Client{Timeout: 15 * time.Second},
			orderbitget.Credentials{
				APIKey:     secrets.APIKey,
				SecretKey:  secrets.SecretKey,
				Passphrase: secrets.Passphrase,
			},
		)
	}

	gateway, err := order.NewGateway(order.GatewayConfig{}, delegator, metrics)
	if err != nil {
		return err
	}

	var jnl *journal.Journal
	if dbDSN != "" {
		client, err := conn.New(conn.Option{ConnString: dbDSN})
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx); err != nil {
			return err
		}
		jnl, err = journal.New(journal.Config{}, client)
		if err != nil {
			return err
		}
	}

	app, err := core.New(core.Options{
		Config:         cfg,
		Stream:         stream,
		Gateway:        gateway,
		Journal:        jnl,
		Metrics:        metrics,
		FeedMaxRetries: feedRetries,
	})
	if err != nil {
		return err
	}

	logs.Infof("trader starting, symbols: %d, paper: %t", len(cfg.Symbols), paper)
	return app.Run(ctx)
}
