// Package scheduling owns every in-process timer the controller arms:
// retry re-checks, override restorations and schedule window fires. Call
// sites only ever Arm and Cancel by key; the map itself is not shared.
package scheduling

import (
	"sync"
	"time"
)

// TimerService maps keys to cancellable one-shot timers. Arming an already
// armed key replaces the previous timer. Cancellation is race-benign: a
// timer that has begun firing runs its function once more; fire functions
// are expected to re-check durable state and treat a stray fire as a no-op.
type TimerService struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewTimerService constructs an empty timer service.
func NewTimerService() *TimerService {
	return &TimerService{timers: make(map[string]*time.Timer)}
}

// Arm schedules fn to run once after delay under key, replacing any timer
// already armed under the same key.
func (s *TimerService) Arm(key string, delay time.Duration, fn func()) {
	if s == nil || key == "" || fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if existing, ok := s.timers[key]; ok {
		existing.Stop()
	}
	s.timers[key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
}

// Cancel stops the timer armed under key. No-op for unknown keys.
func (s *TimerService) Cancel(key string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
}

// Armed reports whether a timer is currently armed under key.
func (s *TimerService) Armed(key string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Stop cancels every armed timer and rejects further arming.
func (s *TimerService) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
	s.closed = true
}
