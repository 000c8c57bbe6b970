package obs

import (
	"sync/atomic"
	"time"
)

// IDGenerator creates monotonically increasing client order IDs.
type IDGenerator struct {
	next uint64
}

// NewIDGenerator returns a generator seeded with the given value.
func NewIDGenerator(seed uint64) *IDGenerator {
	if seed == 0 {
		seed = uint64(time.Now().UTC().UnixNano())
	}
	return &IDGenerator{next: seed}
}

// Next returns the next ID.
func (g *IDGenerator) Next() uint64 {
	if g == nil {
		return 0
	}
	return atomic.AddUint64(&g.next, 1)
}
