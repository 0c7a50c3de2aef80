package data

import (
	"sync/atomic"
	"time"
)

// sequence hands out strictly increasing values seeded from the wall
// clock, so insertion order survives restarts and same-second inserts.
type sequence struct {
	last atomic.Int64
}

func (s *sequence) next(now time.Time) int64 {
	n := now.UnixNano()
	for {
		last := s.last.Load()
		if n <= last {
			n = last + 1
		}
		if s.last.CompareAndSwap(last, n) {
			return n
		}
	}
}
