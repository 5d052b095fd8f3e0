package session

import "time"

// silenceTimer is a single-shot timer whose firings carry a generation. Every
// arm or stop bumps the generation, so a callback from a superseded arming
// sees a stale value and does nothing. It is not safe for concurrent use;
// callers guard it with their own mutex.
type silenceTimer struct {
	d   time.Duration
	gen uint64
	t   *time.Timer
}

// arm (re)starts the timer. fire runs on its own goroutine with the
// generation that was current when arm was called.
func (s *silenceTimer) arm(fire func(gen uint64)) {
	s.stop()
	gen := s.gen
	s.t = time.AfterFunc(s.d, func() { fire(gen) })
}

// stop cancels a pending firing and invalidates any callback already running.
func (s *silenceTimer) stop() {
	s.gen++
	if s.t != nil {
		s.t.Stop()
		s.t = nil
	}
}

// current reports whether gen is the live generation.
func (s *silenceTimer) current(gen uint64) bool {
	return gen == s.gen
}
