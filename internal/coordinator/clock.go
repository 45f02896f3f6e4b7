package coordinator

import "time"

// realClock is a monotonic millisecond source anchored at its creation.
// It never reports zero so "unset" timestamps stay distinguishable.
type realClock struct {
	start time.Time
}

// NewRealClock returns a Clock backed by the process monotonic clock.
func NewRealClock() Clock {
	return &realClock{start: time.Now()}
}

func (c *realClock) NowMs() int64 {
	return time.Since(c.start).Milliseconds() + 1
}
