package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockLost is returned by Extend when the key expired or changed owner.
var ErrLockLost = errors.New("distlock: lock no longer owned")

// Renewable is a lock whose ownership expires unless it is extended.
type Renewable interface {
	Extend(ctx context.Context, ttl time.Duration) error
	TTL() time.Duration
}

// RedisLock holds "dispatch:lock:<session>" with SET NX PX. The value is a
// random owner token so that release and extend only touch our own key.
type RedisLock struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

// NewRedisLock builds a lock for one dispatch session.
func NewRedisLock(client *redis.Client, session string, ttl time.Duration) *RedisLock {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return &RedisLock{
		client: client,
		key:    "dispatch:lock:" + session,
		owner:  hex.EncodeToString(b[:]),
		ttl:    ttl,
	}
}

// TTL is the expiry applied on acquire.
func (l *RedisLock) TTL() time.Duration { return l.ttl }

// Acquire sets the key if nobody holds it.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	return ok, nil
}

// compare-and-delete / compare-and-pexpire on the owner token
var (
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) ~= ARGV[1] then return 0 end
return redis.call("del", KEYS[1])`)

	extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) ~= ARGV[1] then return 0 end
return redis.call("pexpire", KEYS[1], ARGV[2])`)
)

// Release deletes the key if it is still ours.
func (l *RedisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Err(); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}

// Extend pushes the expiry out to ttl from now.
func (l *RedisLock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.owner, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Keepalive extends a Renewable lock every third of its TTL until the
// returned stop func is called. onLost runs once if ownership is lost.
// Locks that do not expire get a no-op stop.
func Keepalive(lock DistLock, onLost func(error)) (stop func()) {
	r, ok := lock.(Renewable)
	if !ok || r.TTL() <= 0 {
		return func() {}
	}
	interval := r.TTL() / 3

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			err := r.Extend(ctx, r.TTL())
			switch {
			case err == nil, ctx.Err() != nil:
			case errors.Is(err, ErrLockLost):
				if onLost != nil {
					onLost(err)
				}
				return
			default:
				// transient; the next tick retries before the key expires
				log.Printf("[distlock] extend failed: %v", err)
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}
