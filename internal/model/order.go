package model

import "main/internal/model/enum"

// OrderIntent is a single order request produced by a strategy decision.
type OrderIntent struct {
	ClientOrderID uint64
	Symbol        string
	Side          enum.OrderSide
	Type          enum.OrderType
	Price         float64
	Size          float64
	Reason        string
}

// OrderResult reports the asynchronous outcome of a submission.
type OrderResult struct {
	ClientOrderID uint64
	OrderID       string
	Symbol        string
	Status        enum.OrderStatus
	Reason        string
	TsNano        int64
}

func (r OrderResult) Rejected() bool {
	return r.Status == enum.OrderStatusRejected
}
