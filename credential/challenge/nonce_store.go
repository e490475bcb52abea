package challenge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryNonceStore keeps outstanding nonces in process memory.
type MemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]time.Time
	now    func() time.Time
}

// NewMemoryNonceStore creates an empty in-memory nonce store.
func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{nonces: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryNonceStore) Register(_ context.Context, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for n, exp := range s.nonces {
		if !now.Before(exp) {
			delete(s.nonces, n)
		}
	}

	if _, ok := s.nonces[nonce]; ok {
		return fmt.Errorf("nonce already outstanding")
	}
	s.nonces[nonce] = now.Add(ttl)

	return nil
}

func (s *MemoryNonceStore) Consume(_ context.Context, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.nonces[nonce]
	if !ok {
		return false, nil
	}
	delete(s.nonces, nonce)

	return s.now().Before(exp), nil
}

const nonceKeyPrefix = "fedtrust:nonce:"

// RedisNonceStore shares outstanding nonces between verifier replicas.
type RedisNonceStore struct {
	client    redis.UniversalClient
	opTimeout time.Duration
}

// NewRedisNonceStore creates a RedisNonceStore.
func NewRedisNonceStore(client redis.UniversalClient, opTimeout time.Duration) *RedisNonceStore {
	return &RedisNonceStore{client: client, opTimeout: opTimeout}
}

func (s *RedisNonceStore) Register(ctx context.Context, nonce string, ttl time.Duration) error {
	ctx, cancel := s.contextWithTimeout(ctx)
	defer cancel()

	isSet, err := s.client.SetNX(ctx, nonceKeyPrefix+nonce, "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	if !isSet {
		return fmt.Errorf("nonce already outstanding")
	}

	return nil
}

func (s *RedisNonceStore) Consume(ctx context.Context, nonce string) (bool, error) {
	ctx, cancel := s.contextWithTimeout(ctx)
	defer cancel()

	_, err := s.client.GetDel(ctx, nonceKeyPrefix+nonce).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis getdel failed: %w", err)
	}

	return true, nil
}

func (s *RedisNonceStore) contextWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, s.opTimeout)
}
