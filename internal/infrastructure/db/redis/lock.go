// Package redis provides the optional cross-process advisory lock used to
// serialize per-user writes between processes sharing one store.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultLockTTL   = 10 * time.Second
	lockRetryBackoff = 25 * time.Millisecond
)

// Config selects the Redis server and the lock expiry.
type Config struct {
	Addr    string
	DB      int
	LockTTL time.Duration
	// Timeout bounds the initial ping.
	Timeout time.Duration
}

// releaseScript deletes the lock only if it still carries our token, so a
// holder whose TTL lapsed cannot release somebody else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript re-arms the TTL only while the lock still carries our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Open dials Redis, pings it and returns a locker owning the client.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (*AdvisoryLocker, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		DB:         cfg.DB,
		MaxRetries: 1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}

	log.Debug().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("advisory lock connected")
	return NewAdvisoryLocker(client, cfg.LockTTL, log), nil
}

// AdvisoryLocker provides cross-process locks backed by Redis.
// Key format: lock:<key>
type AdvisoryLocker struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewAdvisoryLocker creates an AdvisoryLocker wrapping the given Redis client.
// A held lock is re-armed every ttl/3, so ttl only bounds how long a crashed
// holder keeps others waiting.
func NewAdvisoryLocker(client *redis.Client, ttl time.Duration, log zerolog.Logger) *AdvisoryLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &AdvisoryLocker{client: client, ttl: ttl, log: log}
}

// Lock blocks until the lock for key is acquired or ctx is done.
func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	k := l.key(key)
	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("advisory lock %s: %w", key, err)
		}
		if ok {
			return l.hold(k, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("advisory lock %s: %w", key, ctx.Err())
		case <-time.After(lockRetryBackoff):
		}
	}
}

// hold keeps the lock alive until the returned function releases it.
func (l *AdvisoryLocker) hold(key, token string) func() {
	every := l.ttl / 3
	if every <= 0 {
		every = l.ttl
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(stop, every, func() (bool, error) { return l.extend(key, token) },
			l.log.With().Str("key", key).Logger())
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			l.release(key, token)
		})
	}
}

// keepAlive calls extend every interval until stop is closed or extend
// reports the lock is no longer ours.
func keepAlive(stop <-chan struct{}, every time.Duration, extend func() (bool, error), log zerolog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ok, err := extend()
			switch {
			case err != nil:
				log.Warn().Err(err).Msg("failed to extend advisory lock")
			case !ok:
				log.Warn().Msg("advisory lock expired while held")
				return
			}
		}
	}
}

func (l *AdvisoryLocker) extend(key, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	n, err := extendScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *AdvisoryLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("failed to release advisory lock")
	}
}

// Close releases the underlying client.
func (l *AdvisoryLocker) Close() error {
	return l.client.Close()
}

func (l *AdvisoryLocker) key(key string) string {
	return "lock:" + key
}
