package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"FlowPull/internal/domain/models"
	"FlowPull/pkg/cache"
)

// ErrNotFound is returned when a job is unknown or its entry expired.
var ErrNotFound = errors.New("progress: job not found")

// Store persists job progress snapshots with a TTL.
type Store interface {
	Put(ctx context.Context, p *models.FetchJobProgress, ttl time.Duration) error
	Get(ctx context.Context, jobID string) (*models.FetchJobProgress, error)
}

func progressKey(jobID string) string {
	return cache.GenerateKey("fetch:progress", jobID)
}

// RedisStore keeps progress in the shared cache so any node can serve reads.
type RedisStore struct {
	cache cache.Service
}

func NewRedisStore(c cache.Service) *RedisStore {
	return &RedisStore{cache: c}
}

func (s *RedisStore) Put(ctx context.Context, p *models.FetchJobProgress, ttl time.Duration) error {
	return s.cache.Set(ctx, progressKey(p.JobID), p, ttl)
}

func (s *RedisStore) Get(ctx context.Context, jobID string) (*models.FetchJobProgress, error) {
	var p models.FetchJobProgress
	if err := s.cache.Get(ctx, progressKey(jobID), &p); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

type memoryEntry struct {
	p   models.FetchJobProgress
	exp time.Time
}

// MemoryStore is a process-local store for single-node runs and tests.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Put(_ context.Context, p *models.FetchJobProgress, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.m[p.JobID] = memoryEntry{p: *p, exp: exp}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, jobID string) (*models.FetchJobProgress, error) {
	s.mu.RLock()
	e, ok := s.m[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		s.mu.Lock()
		delete(s.m, jobID)
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	p := e.p
	return &p, nil
}
