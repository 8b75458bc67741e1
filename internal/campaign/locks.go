package campaign

import (
	"context"
	"sync"
	"time"

	"campaign-dialer/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AgentLocker serializes schedule requests per agent. The scheduler holds the
// lock across conflict-check + job creation + reservation so two concurrent
// schedule calls for the same agent cannot both pass the existence check.
type AgentLocker interface {
	// Acquire returns a release func when the lock was taken, or ok=false when
	// another schedule request for the agent is in flight.
	Acquire(ctx context.Context, agentID string) (release func(), ok bool, err error)
}

// RedisAgentLocker backs the lock with redis SET NX so the guard holds across
// processes. The TTL bounds lock leakage on crash.
type RedisAgentLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisAgentLocker(rdb *redis.Client) *RedisAgentLocker {
	return &RedisAgentLocker{rdb: rdb, ttl: 15 * time.Second}
}

func (l *RedisAgentLocker) Acquire(ctx context.Context, agentID string) (func(), bool, error) {
	key := "campaign:schedule-lock:" + agentID
	token := uuid.NewString()

	ok, err := utils.AcquireLock(ctx, l.rdb, key, token, l.ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		// Release on a fresh context; the request context may already be done.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = utils.ReleaseLock(rctx, l.rdb, key, token)
	}
	return release, true, nil
}

// MemoryAgentLocker is a process-local locker for tests and single-node runs.
type MemoryAgentLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMemoryAgentLocker() *MemoryAgentLocker {
	return &MemoryAgentLocker{held: map[string]bool{}}
}

func (l *MemoryAgentLocker) Acquire(ctx context.Context, agentID string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[agentID] {
		return nil, false, nil
	}
	l.held[agentID] = true
	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, agentID)
	}
	return release, true, nil
}
