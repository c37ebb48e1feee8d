package gateway

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

const defaultLimit = 4

// Limiter caps concurrent calls per backend name.
type Limiter struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
	caps map[string]int64
}

// NewLimiter returns an empty limiter. Most callers want Shared.
func NewLimiter() *Limiter {
	return &Limiter{
		sems: make(map[string]*semaphore.Weighted),
		caps: make(map[string]int64),
	}
}

var (
	sharedOnce    sync.Once
	sharedLimiter *Limiter
)

// Shared returns the process-wide limiter.
func Shared() *Limiter {
	sharedOnce.Do(func() { sharedLimiter = NewLimiter() })
	return sharedLimiter
}

// Register sets the ceiling for backend. The first registration wins so
// every gateway instance in the process observes the same limit.
func (l *Limiter) Register(backend string, limit int) {
	if l == nil {
		return
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sems[backend]; ok {
		return
	}
	l.sems[backend] = semaphore.NewWeighted(int64(limit))
	l.caps[backend] = int64(limit)
}

// Limit returns the ceiling registered for backend, or 0 when unknown.
func (l *Limiter) Limit(backend string) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return int(l.caps[backend])
}

// Acquire blocks until a slot for backend is free or ctx is done.
// A nil limiter never blocks.
func (l *Limiter) Acquire(ctx context.Context, backend string) (func(), error) {
	if l == nil {
		return func() {}, ctx.Err()
	}
	l.mu.Lock()
	sem, ok := l.sems[backend]
	if !ok {
		sem = semaphore.NewWeighted(defaultLimit)
		l.sems[backend] = sem
		l.caps[backend] = defaultLimit
	}
	l.mu.Unlock()
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { sem.Release(1) }) }, nil
}
