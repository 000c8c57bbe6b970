package enum

// SnapshotKind identifies which shared-state slot an update targets.
type SnapshotKind uint8

const (
	_snapshot_kind_beg SnapshotKind = iota
	SnapshotPrice
	SnapshotPosition
	_snapshot_kind_end
)

func (k SnapshotKind) IsAvailable() bool {
	return k > _snapshot_kind_beg && k < _snapshot_kind_end
}

func (k SnapshotKind) String() string {
	switch k {
	case SnapshotPrice:
		return "price"
	case SnapshotPosition:
		return "position"
	default:
		return "unknown"
	}
}
