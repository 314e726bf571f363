// Package lock provides the keyed locks that serialize per-user operations.
package lock

import (
	"context"
	"hash/fnv"
)

const defaultStripes = 64

// Striped maps keys deterministically onto a fixed set of mutex stripes using
// fnv hashing, so operations on the same key never interleave. Distinct keys
// may share a stripe; a caller must never hold two keys at once.
type Striped struct {
	stripes []chan struct{}
}

// NewStriped creates a Striped lock with n stripes.
// If n <= 0, defaultStripes is used.
func NewStriped(n int) *Striped {
	if n <= 0 {
		n = defaultStripes
	}
	s := &Striped{stripes: make([]chan struct{}, n)}
	for i := range s.stripes {
		s.stripes[i] = make(chan struct{}, 1)
	}
	return s
}

// Lock blocks until the stripe for key is free or ctx is done.
func (s *Striped) Lock(ctx context.Context, key string) (func(), error) {
	ch := s.stripes[s.stripeIndex(key)]
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// stripeIndex maps a key deterministically to a stripe index.
func (s *Striped) stripeIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.stripes)))
}
