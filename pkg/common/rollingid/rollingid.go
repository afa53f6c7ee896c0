// Package rollingid generates monotone integer ids that wrap from the
// maximum representable value back to the minimum instead of overflowing,
// used to name pools and worker goroutines for observability.
package rollingid

import (
	"math"
	"sync/atomic"
)

// Generator is an atomic, wrapping int64 counter. The zero value is ready
// to use and starts at 0.
type Generator struct {
	at atomic.Int64
}

// Next returns the next id. When the counter is at math.MaxInt64 it wraps
// to math.MinInt64 atomically via compare-and-swap rather than overflowing,
// and never hands out the same value twice within one wrap cycle.
func (g *Generator) Next() int64 {
	for {
		cur := g.at.Load()
		if cur == math.MaxInt64 {
			if g.at.CompareAndSwap(cur, math.MinInt64) {
				return cur
			}
			continue
		}
		if g.at.CompareAndSwap(cur, cur+1) {
			return cur
		}
	}
}
