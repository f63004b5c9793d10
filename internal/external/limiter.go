package external

// limiter.go bounds how many photo uploads run at once across all
// conversations. Callers that cannot get a slot within maxWait fail with
// ErrTooManyUploads instead of queueing forever.

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrTooManyUploads = errors.New("too many photo uploads in progress, try again shortly")

const (
	DefaultMaxConcurrentUploads = 4
	DefaultMaxWaitTime          = 20 * time.Second
)

type Limiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.Mutex
	active int
}

func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentUploads
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &Limiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire takes a slot. The caller must Release it when done.
func (l *Limiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyUploads
	}
}

func (l *Limiter) Release() {
	select {
	case <-l.semaphore:
		l.mu.Lock()
		l.active--
		l.mu.Unlock()
	default:
	}
}

// Active returns the number of uploads currently holding a slot.
func (l *Limiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}
