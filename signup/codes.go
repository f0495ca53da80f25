package signup

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CodeStore guards against exchanging the same authorization code twice.
// Claim must be an atomic check-and-insert: two concurrent negotiations
// with the same code must see exactly one true.
type CodeStore interface {
	// Claim marks code as used. It returns false when the code was
	// already claimed.
	Claim(ctx context.Context, code string) (bool, error)
	// Release returns a claimed code to the unused set, compensating a
	// negotiation that failed after the exchange but before persistence.
	Release(ctx context.Context, code string) error
}

// CodeTTL bounds how long a claimed code is remembered. Provider codes
// expire in minutes; an hour of memory is enough to block replays.
const CodeTTL = time.Hour

// MemoryCodeStore is the process-local CodeStore. Good enough for a
// single instance; multi-instance deployments should use RedisCodeStore
// so replays are blocked across the fleet.
type MemoryCodeStore struct {
	mu   sync.Mutex
	used map[string]time.Time
}

func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{used: make(map[string]time.Time)}
}

func (s *MemoryCodeStore) Claim(_ context.Context, code string) (bool, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if at, ok := s.used[code]; ok && now.Sub(at) < CodeTTL {
		return false, nil
	}
	s.used[code] = now
	return true, nil
}

func (s *MemoryCodeStore) Release(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.used, code)
	return nil
}

// RedisCodeStore shares the used-code set across instances via SETNX
// with a TTL.
type RedisCodeStore struct {
	Client *redis.Client
}

func NewRedisCodeStore(client *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{Client: client}
}

func codeKey(code string) string { return "signup:used_code:" + code }

func (s *RedisCodeStore) Claim(ctx context.Context, code string) (bool, error) {
	return s.Client.SetNX(ctx, codeKey(code), "1", CodeTTL).Result()
}

func (s *RedisCodeStore) Release(ctx context.Context, code string) error {
	return s.Client.Del(ctx, codeKey(code)).Err()
}
