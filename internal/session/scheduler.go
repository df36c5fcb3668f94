package session

import (
	"sync"
	"time"
)

// Scheduler owns the one-shot deadline timer of each live session. A session
// has at most one pending timer: the wait-window while Waiting, the open
// turn's deadline while InProgress. Arming replaces any previous timer, and
// transitions cancel it, so a fired timer can only ever race the transition
// it was armed for; the fire path re-checks stored state and is a no-op when
// the session already advanced.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer

	// afterFunc is swapped in tests to fire synchronously.
	afterFunc func(d time.Duration, fn func()) *time.Timer
}

// NewScheduler creates a Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		timers:    make(map[string]*time.Timer),
		afterFunc: time.AfterFunc,
	}
}

// Arm schedules fn to run after d, replacing any pending timer for the
// session. The timer deregisters itself before running fn.
func (s *Scheduler) Arm(sessionID string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
	}
	if d < 0 {
		d = 0
	}

	var timer *time.Timer
	timer = s.afterFunc(d, func() {
		s.mu.Lock()
		if s.timers[sessionID] == timer {
			delete(s.timers, sessionID)
		}
		s.mu.Unlock()
		fn()
	})
	s.timers[sessionID] = timer
}

// Cancel stops the session's pending timer, if any. A timer that already
// fired is gone; its callback re-checks state and no-ops.
func (s *Scheduler) Cancel(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
		delete(s.timers, sessionID)
	}
}

// Pending reports whether the session has a timer armed.
func (s *Scheduler) Pending(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[sessionID]
	return ok
}

// Stop cancels all pending timers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
