package bitget

import (
	"strconv"

	"github.com/yanun0323/decimal"
)

const (
	_bitgetBaseWsPublicUrl  = "wss://ws.bitget.com/v2/ws/public"
	_bitgetBaseWsPrivateUrl = "wss://ws.bitget.com/v2/ws/private"

	_bitgetInstTypeUSDTFutures = "USDT-FUTURES"

	_bitgetChannelTicker    = "ticker"
	_bitgetChannelPositions = "positions"
)

type SubscribeArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstID   string `json:"instId"`
}

type SubscribeRequest struct {
	Op   string         `json:"op"`
	Args []SubscribeArg `json:"args"`
}

type LoginArg struct {
	APIKey     string `json:"apiKey"`
	Passphrase string `json:"passphrase"`
	Timestamp  string `json:"timestamp"`
	Sign       string `json:"sign"`
}

type LoginRequest struct {
	Op   string     `json:"op"`
	Args []LoginArg `json:"args"`
}

// EventResponse covers subscribe/login/error acknowledgment frames.
type EventResponse struct {
	Event string       `json:"event"`
	Code  any          `json:"code"`
	Msg   string       `json:"msg"`
	Arg   SubscribeArg `json:"arg"`
}

type TickerData struct {
	InstID     string          `json:"instId"`
	LastPrice  decimal.Decimal `json:"lastPr"`
	BidPrice   decimal.Decimal `json:"bidPr"`
	AskPrice   decimal.Decimal `json:"askPr"`
	BaseVolume decimal.Decimal `json:"baseVolume"`
	Ts         string          `json:"ts"`
}

type TickerPush struct {
	Action string       `json:"action"`
	Arg    SubscribeArg `json:"arg"`
	Data   []TickerData `json:"data"`
	Ts     int64        `json:"ts"`
}

type PositionData struct {
	InstID        string          `json:"instId"`
	HoldSide      string          `json:"holdSide"`
	Total         decimal.Decimal `json:"total"`
	OpenPriceAvg  decimal.Decimal `json:"openPriceAvg"`
	UnrealizedPL  decimal.Decimal `json:"unrealizedPL"`
	MarginSize    decimal.Decimal `json:"marginSize"`
	UpdatedTimeMs string          `json:"uTime"`
}

type PositionPush struct {
	Action string         `json:"action"`
	Arg    SubscribeArg   `json:"arg"`
	Data   []PositionData `json:"data"`
	Ts     int64          `json:"ts"`
}

func toFloat(d decimal.Decimal) float64 {
	f, err := strconv.ParseFloat(d.String(), 64)
	if err != nil {
		return 0
	}
	return f
}

func msToNano(s string) int64 {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return ms * int64(1_000_000)
}
