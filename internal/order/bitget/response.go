package bitget

// Response wraps every Bitget REST payload.
type Response[T any] struct {
	Code        string `json:"code"`
	Message     string `json:"msg"`
	RequestTime int64  `json:"requestTime"`
	Data        T      `json:"data"`
}

const codeOK = "00000"

// OK reports whether the exchange accepted the request.
func (r Response[T]) OK() bool {
	return r.Code == codeOK
}

// ResponsePlaceOrder is the data body of a place-order call.
type ResponsePlaceOrder struct {
	OrderID   string `json:"orderId"`
	ClientOID string `json:"clientOid"`
}
