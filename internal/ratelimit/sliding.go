package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	mu     sync.Mutex
	stamps []time.Time // ascending
}

// prune drops timestamps at or before cutoff.
func (w *window) prune(cutoff time.Time) {
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

type slidingWindow struct {
	mu      sync.RWMutex
	windows map[string]*window

	length time.Duration
	max    int
	now    func() time.Time
}

func newSlidingWindow(cfg Config, now func() time.Time) *slidingWindow {
	return &slidingWindow{
		windows: make(map[string]*window),
		length:  cfg.Window,
		max:     cfg.MaxRequests,
		now:     now,
	}
}

func (s *slidingWindow) get(identity string) *window {
	s.mu.RLock()
	w := s.windows[identity]
	s.mu.RUnlock()
	if w != nil {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w = s.windows[identity]; w == nil {
		w = &window{stamps: make([]time.Time, 0, min(s.max, 16))}
		s.windows[identity] = w
	}
	return w
}

func (s *slidingWindow) Admit(identity string) bool {
	w := s.get(identity)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := s.now()
	w.prune(now.Add(-s.length))
	if len(w.stamps) >= s.max {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

func (s *slidingWindow) RetryAfter(identity string) time.Duration {
	s.mu.RLock()
	w := s.windows[identity]
	s.mu.RUnlock()
	if w == nil {
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	now := s.now()
	w.prune(now.Add(-s.length))
	if len(w.stamps) < s.max {
		return 0
	}
	return w.stamps[0].Add(s.length).Sub(now)
}

// Sweep forgets devices whose windows hold no live timestamps and returns
// how many were dropped.
func (s *slidingWindow) Sweep() int {
	cutoff := s.now().Add(-s.length)

	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for id, w := range s.windows {
		w.mu.Lock()
		w.prune(cutoff)
		empty := len(w.stamps) == 0
		w.mu.Unlock()
		if empty {
			delete(s.windows, id)
			dropped++
		}
	}
	return dropped
}

func (s *slidingWindow) tracked() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.windows)
}
