// Package journal persists closed candles and order outcomes to
// PostgreSQL. It is strictly best-effort: recording never blocks a
// pipeline stage and a failed insert is logged, not escalated.
package journal

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"

	"main/internal/bus"
	"main/internal/model"
	"main/pkg/conn"
)

// CandleRow is the candles table layout.
type CandleRow struct {
	ID        uint64  `gorm:"primaryKey;autoIncrement"`
	Symbol    string  `gorm:"index:idx_candles_symbol_start"`
	StartNano int64   `gorm:"index:idx_candles_symbol_start"`
	EndNano   int64   `gorm:""`
	Open      float64 `gorm:""`
	High      float64 `gorm:""`
	Low       float64 `gorm:""`
	Close     float64 `gorm:""`
	Volume    float64 `gorm:""`
	TickCount int     `gorm:""`
	Carried   bool    `gorm:""`
}

func (CandleRow) TableName() string { return "candles" }

// OrderResultRow is the order_results table layout.
type OrderResultRow struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	ClientOrderID uint64 `gorm:"index"`
	OrderID       string `gorm:""`
	Symbol        string `gorm:"index"`
	Status        string `gorm:""`
	Reason        string `gorm:""`
	TsNano        int64  `gorm:""`
}

func (OrderResultRow) TableName() string { return "order_results" }

func toCandleRow(c model.Candle) CandleRow {
	return CandleRow{
		Symbol:    c.Symbol,
		StartNano: c.Start.UnixNano(),
		EndNano:   c.End.UnixNano(),
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
		TickCount: c.TickCount,
		Carried:   c.Carried,
	}
}

func toOrderResultRow(r model.OrderResult) OrderResultRow {
	return OrderResultRow{
		ClientOrderID: r.ClientOrderID,
		OrderID:       r.OrderID,
		Symbol:        r.Symbol,
		Status:        r.Status.String(),
		Reason:        r.Reason,
		TsNano:        r.TsNano,
	}
}

type record struct {
	candle *model.Candle
	result *model.OrderResult
}

// Config tunes the journal buffer.
type Config struct {
	Buffer      int           // pending record queue; <=0 means 256
	PollTimeout time.Duration // writer wakeup; <=0 means 1s
}

// Journal buffers records and writes them from its own goroutine.
// A nil Journal is valid and drops everything, so callers can record
// unconditionally whether persistence is configured or not.
type Journal struct {
	client *conn.Client
	queue  *bus.Queue[record]
	cfg    Config
}

// New migrates the tables and builds a journal over the client.
func New(cfg Config, client *conn.Client) (*Journal, error) {
	if client == nil || client.DB() == nil {
		return nil, errors.New("journal: nil database client")
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	if err := client.DB().AutoMigrate(&CandleRow{}, &OrderResultRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate journal tables")
	}
	return &Journal{
		client: client,
		queue:  bus.NewQueue[record](cfg.Buffer, bus.OverflowDropOldest),
		cfg:    cfg,
	}, nil
}

// RecordCandle enqueues a closed candle. Never blocks.
func (j *Journal) RecordCandle(c model.Candle) {
	if j == nil {
		return
	}
	j.push(record{candle: &c})
}

// RecordOrderResult enqueues an order outcome. Never blocks.
func (j *Journal) RecordOrderResult(r model.OrderResult) {
	if j == nil {
		return
	}
	j.push(record{result: &r})
}

func (j *Journal) push(rec record) {
	// DropOldest makes Push non-blocking; an overwhelmed journal sheds
	// its oldest pending rows instead of stalling the caller.
	if err := j.queue.Push(context.Background(), rec); err != nil {
		logs.Warnf("journal enqueue failed, err: %+v", err)
	}
}

// Run writes buffered records until ctx ends, then drains what is left.
func (j *Journal) Run(ctx context.Context) error {
	if j == nil {
		return nil
	}
	logs.Info("journal started")
	defer logs.Info("journal stopped")

	for {
		rec, err := j.queue.Pop(ctx, j.cfg.PollTimeout)
		switch err {
		case nil:
			j.write(ctx, rec)
		case bus.ErrPopTimeout:
		case bus.ErrQueueClosed:
			return nil
		default:
			if ctx.Err() != nil {
				j.drain()
				return nil
			}
			return err
		}
	}
}

func (j *Journal) drain() {
	db := j.client.DB().Session(&gorm.Session{})
	for {
		rec, ok := j.queue.TryPop()
		if !ok {
			return
		}
		j.insert(db, rec)
	}
}

func (j *Journal) write(ctx context.Context, rec record) {
	j.insert(j.client.DB().WithContext(ctx), rec)
}

func (j *Journal) insert(db *gorm.DB, rec record) {
	var err error
	switch {
	case rec.candle != nil:
		row := toCandleRow(*rec.candle)
		err = db.Create(&row).Error
	case rec.result != nil:
		row := toOrderResultRow(*rec.result)
		err = db.Create(&row).Error
	default:
		return
	}
	if err != nil {
		logs.Warnf("journal insert failed, err: %+v", err)
	}
}
