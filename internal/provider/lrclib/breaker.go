package lrclib

import "sync/atomic"

// Breaker disables the provider for the rest of the process once LRCLIB has
// answered 429. It is shared by every adapter built from it.
type Breaker struct {
	tripped atomic.Bool
}

// Trip opens the breaker. It reports whether this call was the one that
// opened it.
func (b *Breaker) Trip() bool {
	return b.tripped.CompareAndSwap(false, true)
}

// Tripped reports whether the breaker is open.
func (b *Breaker) Tripped() bool {
	return b.tripped.Load()
}
