package authsession

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestRefreshDelay(t *testing.T) {
	tests := []struct {
		name      string
		expiresIn time.Duration
		want      time.Duration
	}{
		{"one hour", 3600 * time.Second, 3300 * time.Second},
		{"just over threshold", 331 * time.Second, 31 * time.Second},
		{"floor at threshold plus min", 330 * time.Second, 30 * time.Second},
		{"below floor", 300 * time.Second, 30 * time.Second},
		{"short lived", 10 * time.Second, 30 * time.Second},
		{"zero", 0, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RefreshDelay(tt.expiresIn); got != tt.want {
				t.Errorf("RefreshDelay(%v) = %v, want %v", tt.expiresIn, got, tt.want)
			}
		})
	}
}

func TestRefreshDelay_AllSeconds(t *testing.T) {
	for secs := 0; secs <= 7200; secs++ {
		expiresIn := time.Duration(secs) * time.Second
		want := expiresIn - 300*time.Second
		if want < 30*time.Second {
			want = 30 * time.Second
		}
		if got := RefreshDelay(expiresIn); got != want {
			t.Fatalf("RefreshDelay(%ds) = %v, want %v", secs, got, want)
		}
	}
}

func TestScheduler_ArmFiresOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fired := make(chan struct{}, 4)
	s := NewScheduler(clock, func() { fired <- struct{}{} })

	delay := s.Arm(time.Hour)
	if delay != 55*time.Minute {
		t.Fatalf("Arm() = %v, want 55m", delay)
	}
	if d, ok := s.Pending(); !ok || d != 55*time.Minute {
		t.Fatalf("Pending() = %v, %v; want 55m, true", d, ok)
	}

	clock.Advance(55*time.Minute - time.Second)
	select {
	case <-fired:
		t.Fatal("fired before the delay elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(time.Second)
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}

	if _, ok := s.Pending(); ok {
		t.Error("Pending() = true after firing")
	}
}

func TestScheduler_RearmCancelsPrevious(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var count atomic.Int32
	s := NewScheduler(clock, func() { count.Add(1) })

	s.Arm(400 * time.Second) // fires at 100s
	s.Arm(time.Hour)         // fires at 3300s

	clock.Advance(200 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if got := count.Load(); got != 0 {
		t.Fatalf("superseded timer fired %d times", got)
	}

	clock.Advance(3100 * time.Second)
	waitUntil(t, func() bool { return count.Load() == 1 }, "rearmed timer to fire")
	time.Sleep(20 * time.Millisecond)
	if got := count.Load(); got != 1 {
		t.Errorf("fired %d times, want 1", got)
	}
}

func TestScheduler_CancelIsIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var count atomic.Int32
	s := NewScheduler(clock, func() { count.Add(1) })

	s.Cancel()
	s.Arm(time.Minute)
	s.Cancel()
	s.Cancel()

	if _, ok := s.Pending(); ok {
		t.Error("Pending() = true after Cancel")
	}
	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	if got := count.Load(); got != 0 {
		t.Errorf("cancelled timer fired %d times", got)
	}
}

func TestScheduler_StaleCallbackIgnored(t *testing.T) {
	var count atomic.Int32
	s := NewScheduler(clockwork.NewFakeClock(), func() { count.Add(1) })

	s.Arm(time.Hour)
	s.mu.Lock()
	staleSeq := s.seq
	s.mu.Unlock()

	// the callback of a stopped timer may already be running
	s.Arm(time.Hour)
	s.onFire(staleSeq)

	if got := count.Load(); got != 0 {
		t.Errorf("stale callback ran fire %d times", got)
	}
	if _, ok := s.Pending(); !ok {
		t.Error("stale callback cleared the current timer")
	}
}

// waitUntil polls cond until it holds or the deadline passes
func waitUntil(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
