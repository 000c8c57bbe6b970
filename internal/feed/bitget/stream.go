package bitget

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"main/internal/feed"
	"main/internal/model"
	"main/internal/model/enum"
)

// Credentials holds the Bitget API credential record.
type Credentials struct {
	APIKey     string
	SecretKey  string
	Passphrase string
}

// Stream feeds Bitget USDT-futures ticker and position updates to the
// feed adapter. The public socket carries tickers, the private socket
// carries positions after login; both fan into one update channel.
type Stream struct {
	creds Credentials

	mu   sync.Mutex
	pub  *ws.WebSocket
	priv *ws.WebSocket
}

// NewStream creates an unconnected Bitget stream.
func NewStream(creds Credentials) *Stream {
	return &Stream{creds: creds}
}

// Subscribe dials both sockets, logs in, subscribes every symbol, and
// returns the session's update channel. The channel closes when both
// sockets stop delivering.
func (s *Stream) Subscribe(ctx context.Context, symbols []string) (<-chan feed.Update, error) {
	s.Close()

	pub := ws.New(ctx, _bitgetBaseWsPublicUrl)
	if err := pub.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "start public wss")
	}

	priv := ws.New(ctx, _bitgetBaseWsPrivateUrl)
	if err := priv.Start(ctx); err != nil {
		pub.Close()
		return nil, errors.Wrap(err, "start private wss")
	}

	if err := s.login(ctx, priv); err != nil {
		pub.Close()
		priv.Close()
		return nil, errors.Wrap(err, "login")
	}

	for _, symbol := range symbols {
		if err := subscribeChannel(ctx, pub, _bitgetChannelTicker, symbol); err != nil {
			pub.Close()
			priv.Close()
			return nil, errors.Wrap(err, "subscribe ticker").With("symbol", symbol)
		}
	}
	if err := subscribeChannel(ctx, priv, _bitgetChannelPositions, "default"); err != nil {
		pub.Close()
		priv.Close()
		return nil, errors.Wrap(err, "subscribe positions")
	}

	s.mu.Lock()
	s.pub, s.priv = pub, priv
	s.mu.Unlock()

	out := make(chan feed.Update, 256)
	var wg sync.WaitGroup
	wg.Add(2)
	go observeTickers(ctx, pub, out, &wg)
	go observePositions(ctx, priv, out, &wg)
	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

// Close tears down the current session's sockets.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pub != nil {
		s.pub.Close()
		s.pub = nil
	}
	if s.priv != nil {
		s.priv.Close()
		s.priv = nil
	}
}

// sign builds the websocket login signature:
// base64(hmac-sha256(timestamp + "GET" + "/user/verify", secret)).
func sign(secret, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "GET" + "/user/verify"))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (s *Stream) login(ctx context.Context, client *ws.WebSocket) error {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	payload := LoginRequest{
		Op: "login",
		Args: []LoginArg{{
			APIKey:     s.creds.APIKey,
			Passphrase: s.creds.Passphrase,
			Timestamp:  timestamp,
			Sign:       sign(s.creds.SecretKey, timestamp),
		}},
	}

	if err := client.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, client *ws.WebSocket) error {
			if err := client.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write login payload")
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := ws.ReadMessage[EventResponse](m)
			if !ok {
				return false, nil
			}
			switch resp.Event {
			case "login":
				return true, nil
			case "error":
				return false, errors.Errorf("login rejected, code: %v, msg: %s", resp.Code, resp.Msg)
			default:
				return false, nil
			}
		},
	}, false); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	return nil
}

func subscribeChannel(ctx context.Context, client *ws.WebSocket, channel, instID string) error {
	appendIntoRegister := true
	if err := client.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, client *ws.WebSocket) error {
			payload := SubscribeRequest{
				Op: "subscribe",
				Args: []SubscribeArg{{
					InstType: _bitgetInstTypeUSDTFutures,
					Channel:  channel,
					InstID:   instID,
				}},
			}

			if err := client.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}

			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := ws.ReadMessage[EventResponse](m)
			if !ok {
				return false, nil
			}
			switch resp.Event {
			case "subscribe":
				return resp.Arg.Channel == channel, nil
			case "error":
				return false, errors.Errorf("subscribe rejected, code: %v, msg: %s", resp.Code, resp.Msg)
			default:
				return false, nil
			}
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	return nil
}

func observeTickers(ctx context.Context, client *ws.WebSocket, out chan<- feed.Update, wg *sync.WaitGroup) {
	ch, cancel := client.Subscribe()
	defer cancel()
	defer wg.Done()

	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}

			push, ok := ws.ReadMessage[TickerPush](m)
			if !ok || push.Arg.Channel != _bitgetChannelTicker {
				continue
			}

			for _, u := range decodeTickerPush(push) {
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func observePositions(ctx context.Context, client *ws.WebSocket, out chan<- feed.Update, wg *sync.WaitGroup) {
	ch, cancel := client.Subscribe()
	defer cancel()
	defer wg.Done()

	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}

			push, ok := ws.ReadMessage[PositionPush](m)
			if !ok || push.Arg.Channel != _bitgetChannelPositions {
				continue
			}

			for _, u := range decodePositionPush(push) {
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func decodeTickerPush(push TickerPush) []feed.Update {
	now := time.Now().UnixNano()
	updates := make([]feed.Update, 0, len(push.Data))
	for _, d := range push.Data {
		if d.InstID == "" {
			logs.Debugf("bitget: ticker frame without instId, action: %s", push.Action)
			continue
		}
		updates = append(updates, feed.Update{
			Symbol: d.InstID,
			Kind:   enum.SnapshotPrice,
			Price: model.PriceSnapshot{
				Symbol:      d.InstID,
				Last:        toFloat(d.LastPrice),
				BidPrice:    toFloat(d.BidPrice),
				AskPrice:    toFloat(d.AskPrice),
				Volume24h:   toFloat(d.BaseVolume),
				EventTsNano: msToNano(d.Ts),
				RecvTsNano:  now,
			},
		})
	}
	return updates
}

func decodePositionPush(push PositionPush) []feed.Update {
	now := time.Now().UnixNano()
	updates := make([]feed.Update, 0, len(push.Data))
	for _, d := range push.Data {
		if d.InstID == "" {
			continue
		}
		side := enum.PositionSideFlat
		size := toFloat(d.Total)
		switch d.HoldSide {
		case "long":
			side = enum.PositionSideLong
		case "short":
			side = enum.PositionSideShort
		}
		if size == 0 {
			side = enum.PositionSideFlat
		}
		updates = append(updates, feed.Update{
			Symbol: d.InstID,
			Kind:   enum.SnapshotPosition,
			Position: model.PositionSnapshot{
				Symbol:        d.InstID,
				Side:          side,
				Size:          size,
				EntryPrice:    toFloat(d.OpenPriceAvg),
				UnrealizedPnL: toFloat(d.UnrealizedPL),
				Margin:        toFloat(d.MarginSize),
				EventTsNano:   msToNano(d.UpdatedTimeMs),
				RecvTsNano:    now,
			},
		})
	}
	return updates
}
