// Package bitget places orders through the Bitget v2 mix REST API.
package bitget

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"main/internal/model"
	"main/internal/model/enum"
)

const (
	_bitgetBaseURL = "https://api.bitget.com"

	_pathPlaceOrder = "/api/v2/mix/order/place-order"

	_productType = "USDT-FUTURES"
	_marginCoin  = "USDT"
	_marginMode  = "crossed"
)

// Credentials hold the REST API key triple.
type Credentials struct {
	APIKey     string
	SecretKey  string
	Passphrase string
}

type Delegator struct {
	client  *http.Client
	baseURL string
	creds   Credentials
}

func NewDelegator(client *http.Client, creds Credentials) *Delegator {
	return &Delegator{
		client:  client,
		baseURL: _bitgetBaseURL,
		creds:   creds,
	}
}

// WithBaseURL overrides the endpoint host. Used by tests.
func (d *Delegator) WithBaseURL(url string) *Delegator {
	d.baseURL = url
	return d
}

func bitgetSide(side enum.OrderSide) string {
	switch side {
	case enum.OrderSideSell:
		return "sell"
	default:
		return "buy"
	}
}

func bitgetOrderType(t enum.OrderType) string {
	switch t {
	case enum.OrderTypeMarket:
		return "market"
	default:
		return "limit"
	}
}

type requestPlaceOrder struct {
	Symbol      string `json:"symbol"`
	ProductType string `json:"productType"`
	MarginMode  string `json:"marginMode"`
	MarginCoin  string `json:"marginCoin"`
	Size        string `json:"size"`
	Price       string `json:"price,omitempty"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Force       string `json:"force,omitempty"`
	ClientOID   string `json:"clientOid"`
}

// Place submits the intent and maps the exchange response onto an
// OrderResult. A reachable exchange that refuses the order yields a
// rejected result and a nil error; only transport and codec failures
// return an error.
func (d *Delegator) Place(ctx context.Context, intent model.OrderIntent) (model.OrderResult, error) {
	var result model.OrderResult

	body := requestPlaceOrder{
		Symbol:      intent.Symbol,
		ProductType: _productType,
		MarginMode:  _marginMode,
		MarginCoin:  _marginCoin,
		Size:        strconv.FormatFloat(intent.Size, 'f', -1, 64),
		Side:        bitgetSide(intent.Side),
		OrderType:   bitgetOrderType(intent.Type),
		ClientOID:   strconv.FormatUint(intent.ClientOrderID, 10),
	}
	if intent.Type == enum.OrderTypeLimit {
		body.Price = strconv.FormatFloat(intent.Price, 'f', -1, 64)
		body.Force = "gtc"
	}

	payload, err := sonic.ConfigFastest.Marshal(body)
	if err != nil {
		return result, errors.Wrap(err, "marshal place order")
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	r, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		d.baseURL+_pathPlaceOrder,
		bytes.NewReader(payload),
	)
	if err != nil {
		return result, errors.Wrap(err, "build place order request")
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("ACCESS-KEY", d.creds.APIKey)
	r.Header.Set("ACCESS-SIGN", sign(d.creds.SecretKey, timestamp, http.MethodPost, _pathPlaceOrder, payload))
	r.Header.Set("ACCESS-TIMESTAMP", timestamp)
	r.Header.Set("ACCESS-PASSPHRASE", d.creds.Passphrase)
	r.Header.Set("locale", "en-US")

	resp, err := d.client.Do(r)
	if err != nil {
		return result, errors.Wrap(err, "send place order")
	}
	defer resp.Body.Close()

	var data Response[ResponsePlaceOrder]
	if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(&data); err != nil {
		return result, errors.Wrapf(err, "decode place order response, status: %d", resp.StatusCode)
	}

	result = model.OrderResult{
		ClientOrderID: intent.ClientOrderID,
		OrderID:       data.Data.OrderID,
		Symbol:        intent.Symbol,
		Status:        enum.OrderStatusAccepted,
		TsNano:        time.Now().UnixNano(),
	}
	if !data.OK() {
		result.Status = enum.OrderStatusRejected
		result.Reason = data.Message
	}
	return result, nil
}

// sign produces the ACCESS-SIGN header value,
// base64(hmac-sha256(timestamp + method + path + body)).
func sign(secret, timestamp, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
