package worker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// readinessState tracks whether a worker slot is still within its
// health-probe budget, ready, or has been marked permanently unusable.
// Unlike the classic closed/open/half-open breaker, there is no
// recovery path: a worker process is spawned once per slot at
// startup, so once its probe budget is spent the slot stays unusable
// for the process lifetime.
type readinessState int

const (
	readinessProbing readinessState = iota
	readinessReady
	readinessUnusable
)

// readinessBreaker gates one worker slot's probe loop.
type readinessBreaker struct {
	mu       sync.RWMutex
	state    readinessState
	budget   time.Duration
	cooldown time.Duration
	deadline time.Time
	logger   *zap.Logger
}

func newReadinessBreaker(budget, cooldown time.Duration, logger *zap.Logger) *readinessBreaker {
	return &readinessBreaker{
		state:    readinessProbing,
		budget:   budget,
		cooldown: cooldown,
		logger:   logger,
	}
}

func (b *readinessBreaker) start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deadline = time.Now().Add(b.budget)
}

func (b *readinessBreaker) markReady() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == readinessProbing {
		b.state = readinessReady
		b.logger.Info("worker slot ready")
	}
}

// recordProbeFailure records one failed health probe. It returns true
// if the budget is now exhausted and the slot has been marked
// permanently unusable.
func (b *readinessBreaker) recordProbeFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != readinessProbing {
		return b.state == readinessUnusable
	}

	if time.Now().After(b.deadline) {
		b.state = readinessUnusable
		b.logger.Warn("worker slot exceeded readiness budget, marking permanently unusable",
			zap.Duration("budget", b.budget))
		return true
	}
	return false
}

func (b *readinessBreaker) isReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state == readinessReady
}

func (b *readinessBreaker) isUnusable() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state == readinessUnusable
}

func (b *readinessBreaker) cooldownInterval() time.Duration {
	return b.cooldown
}
