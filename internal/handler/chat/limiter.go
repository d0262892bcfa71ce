package chat

import "time"

// frameLimiter counts inbound frames in fixed one-second windows. It is
// owned by a single read loop.
type frameLimiter struct {
	limit  int
	window time.Duration
	start  time.Time
	count  int
}

func newFrameLimiter(perSecond int) *frameLimiter {
	if perSecond <= 0 {
		return nil
	}
	return &frameLimiter{limit: perSecond, window: time.Second}
}

// Allow records a frame received at now and reports whether it is within
// the limit. A nil limiter allows everything.
func (l *frameLimiter) Allow(now time.Time) bool {
	if l == nil {
		return true
	}
	if now.Sub(l.start) >= l.window {
		l.start = now
		l.count = 0
	}
	l.count++
	return l.count <= l.limit
}
