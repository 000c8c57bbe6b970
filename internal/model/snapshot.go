package model

import "main/internal/model/enum"

// Snapshot is a latest-value record keyed by (symbol, kind).
type Snapshot interface {
	SnapshotKind() enum.SnapshotKind
}

// PriceSnapshot is the latest known tick for a symbol. The market feed
// adapter overwrites it in place; readers never see a partial value.
type PriceSnapshot struct {
	Symbol      string
	Last        float64
	BidPrice    float64
	AskPrice    float64
	Volume24h   float64
	EventTsNano int64
	RecvTsNano  int64
}

func (PriceSnapshot) SnapshotKind() enum.SnapshotKind {
	return enum.SnapshotPrice
}

// PositionSnapshot is the latest known account position for a symbol.
// Size is always positive; Side carries the direction.
type PositionSnapshot struct {
	Symbol        string
	Side          enum.PositionSide
	Size          float64
	EntryPrice    float64
	UnrealizedPnL float64
	Margin        float64
	EventTsNano   int64
	RecvTsNano    int64
}

func (PositionSnapshot) SnapshotKind() enum.SnapshotKind {
	return enum.SnapshotPosition
}

// SignedSize folds Side into the sign of Size: long positive, short
// negative, flat zero.
func (p PositionSnapshot) SignedSize() float64 {
	switch p.Side {
	case enum.PositionSideShort:
		return -p.Size
	case enum.PositionSideLong:
		return p.Size
	default:
		return 0
	}
}
