// Package wait implements the retry-wait state machine (spec C2): a small,
// frequently-touched map mutated under a single exclusive-writer lock, per
// the concurrency note that no broker or timer operation may run while the
// guard is held.
package wait

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/facile-ops/queuerunner/internal/domain"
)

// DefaultWaitPart is the countdown-drain quantum, in milliseconds.
const DefaultWaitPart = 1000

// Mode selects how Set interprets its value argument.
type Mode int

const (
	Normal Mode = iota
	Retry
	Forced
)

// Key identifies one worker's wait-state slot.
type Key struct {
	QueueID     int32
	WorkerIndex int32
}

// Scheduler holds the per-(queue, worker) remaining-wait-in-milliseconds
// map. Build one with NewScheduler; the zero value has a nil map and is not
// usable.
type Scheduler struct {
	mu sync.Mutex
	m  map[Key]uint64
}

// NewScheduler returns an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{m: make(map[Key]uint64)}
}

const maxSaturating = math.MaxUint64 / 2

// Get returns the current remaining wait for key, seeding it lazily from
// retryWaitSeconds*1000 on first access.
func (s *Scheduler) Get(key Key, retryWaitSeconds uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.m[key]; ok {
		return v
	}
	v := retryWaitSeconds * 1000
	s.m[key] = v
	return v
}

// Set mutates the wait state for key according to mode:
//
//   - Normal: store value*1000 (reset to the configured retry_wait).
//   - Retry: store value*2 if retryMode is Incremental and value is below
//     the saturation cap, else store value unchanged.
//   - Forced: store value verbatim (used by the countdown drain).
func (s *Scheduler) Set(key Key, mode Mode, value uint64, retryMode domain.RetryMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch mode {
	case Normal:
		s.m[key] = value * 1000
	case Retry:
		if retryMode == domain.RetryIncremental && value < maxSaturating {
			s.m[key] = value * 2
		} else {
			s.m[key] = value
		}
	case Forced:
		s.m[key] = value
	}
}

// CountdownDrain implements the post-reject-requeue drain (spec 4.2): while
// enabled() reports true and the remaining wait is positive, sleep in
// DefaultWaitPart quanta, decrementing under Forced; on reaching zero reset
// to Normal(retryWaitSeconds). Returns early, without resetting, if enabled
// becomes false or ctx is cancelled.
func (s *Scheduler) CountdownDrain(ctx context.Context, key Key, retryWaitSeconds uint64, enabled func() bool) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !enabled() {
			return
		}

		current := s.Get(key, retryWaitSeconds)
		remaining := int64(current) - DefaultWaitPart

		if remaining <= 0 {
			s.Set(key, Normal, retryWaitSeconds, domain.RetryStatic)
			return
		}

		s.Set(key, Forced, uint64(remaining), domain.RetryStatic)

		select {
		case <-time.After(DefaultWaitPart * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}
}
