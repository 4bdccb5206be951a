package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indica que outro processo detém o lock
var ErrLockHeld = errors.New("lock held")

// unlockLua só apaga a chave se o token ainda for o nosso
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// Locker é um lock distribuído SETNX + TTL com unlock condicional em Lua
type Locker struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	poll     time.Duration
}

func NewLocker(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb, unlockSc: redis.NewScript(unlockLua), poll: 25 * time.Millisecond}
}

func lockKey(key string) string { return "lock:" + key }

// TryAcquire tenta uma vez; devolve ErrLockHeld se ocupado.
// A função de unlock pode ser chamada mais de uma vez.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := lockKey(key)
	ok, err := l.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		// contexto próprio: o do chamador pode já ter sido cancelado
		uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.unlockSc.Run(uctx, l.rdb, []string{lk}, token).Err()
	}, nil
}

// Acquire repete TryAcquire até conseguir, até wait expirar ou ctx ser cancelado
func (l *Locker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (func(), error) {
	deadline := time.Now().Add(wait)
	for {
		unlock, err := l.TryAcquire(ctx, key, ttl)
		if !errors.Is(err, ErrLockHeld) {
			return unlock, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s after %s", ErrLockHeld, key, wait)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}
