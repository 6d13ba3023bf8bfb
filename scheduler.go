package authsession

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// RefreshThreshold is how long before expiry to proactively refresh
const RefreshThreshold = 5 * time.Minute

// MinRefreshDelay is the floor on any armed delay, so very short-lived tokens
// or a skewed clock cannot cause a refresh loop.
const MinRefreshDelay = 30 * time.Second

// RefreshDelay returns max(expiresIn - RefreshThreshold, MinRefreshDelay).
func RefreshDelay(expiresIn time.Duration) time.Duration {
	delay := expiresIn - RefreshThreshold
	if delay < MinRefreshDelay {
		return MinRefreshDelay
	}
	return delay
}

// Scheduler owns at most one pending refresh timer. Arming always cancels
// the previous timer first.
type Scheduler struct {
	mu    sync.Mutex
	clock clockwork.Clock
	fire  func()
	timer clockwork.Timer
	delay time.Duration
	seq   uint64
}

// NewScheduler creates a scheduler that calls fire when an armed timer elapses
func NewScheduler(clock clockwork.Clock, fire func()) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{clock: clock, fire: fire}
}

// Arm cancels any pending timer and schedules fire after
// RefreshDelay(expiresIn). Returns the armed delay.
func (s *Scheduler) Arm(expiresIn time.Duration) time.Duration {
	delay := RefreshDelay(expiresIn)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	s.seq++
	seq := s.seq
	s.delay = delay
	s.timer = s.clock.AfterFunc(delay, func() { s.onFire(seq) })
	return delay
}

// Cancel stops the pending timer, if any
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

// Pending reports the delay of the armed timer, if one is pending
func (s *Scheduler) Pending() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return 0, false
	}
	return s.delay, true
}

func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
		s.delay = 0
	}
	// A callback that already started for the old timer sees a newer seq.
	s.seq++
}

func (s *Scheduler) onFire(seq uint64) {
	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.delay = 0
	s.mu.Unlock()

	s.fire()
}
