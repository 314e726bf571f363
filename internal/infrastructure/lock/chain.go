package lock

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/servicedesk/requests/internal/core/ports"
)

// Chain takes the in-process lock first and then, when configured, the
// cross-process advisory lock. The advisory lock is best effort: if its
// store is unreachable the operation proceeds under the local lock alone.
type Chain struct {
	local    ports.Locker
	advisory ports.Locker
	log      zerolog.Logger
}

// NewChain composes local and advisory. advisory may be nil.
func NewChain(local, advisory ports.Locker, log zerolog.Logger) *Chain {
	return &Chain{local: local, advisory: advisory, log: log}
}

func (c *Chain) Lock(ctx context.Context, key string) (func(), error) {
	unlockLocal, err := c.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	if c.advisory == nil {
		return unlockLocal, nil
	}

	unlockRemote, err := c.advisory.Lock(ctx, key)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			unlockLocal()
			return nil, err
		}
		c.log.Warn().Err(err).Str("key", key).Msg("advisory lock unavailable, continuing with local lock")
		return unlockLocal, nil
	}
	return func() {
		unlockRemote()
		unlockLocal()
	}, nil
}
