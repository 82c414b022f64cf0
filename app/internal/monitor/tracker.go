// Package monitor tracks how long each aggregator has stayed unhealthy.
package monitor

import "sync"

// Transition is what a single observation changed.
type Transition int

const (
	// Steady means nothing worth reporting happened.
	Steady Transition = iota
	// Tripped means this check reached the threshold.
	Tripped
	// Recovered means a healthy check ended a streak that had tripped.
	Recovered
)

func (t Transition) String() string {
	switch t {
	case Tripped:
		return "tripped"
	case Recovered:
		return "recovered"
	default:
		return "steady"
	}
}

// Tracker counts consecutive unhealthy checks per aggregator.
// It is safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	counts    map[string]int
	threshold int
}

// NewTracker returns a tracker that trips after threshold consecutive
// unhealthy checks.
func NewTracker(threshold int) *Tracker {
	if threshold < 1 {
		threshold = 1
	}
	return &Tracker{counts: make(map[string]int), threshold: threshold}
}

// Threshold returns the streak length that trips.
func (t *Tracker) Threshold() int {
	return t.threshold
}

// Observe records one check and returns the resulting streak. Tripped is
// reported once per streak; Recovered only follows a tripped streak.
func (t *Tracker) Observe(key string, healthy bool) (int, Transition) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if healthy {
		prev := t.counts[key]
		delete(t.counts, key)
		if prev >= t.threshold {
			return 0, Recovered
		}
		return 0, Steady
	}
	t.counts[key]++
	n := t.counts[key]
	if n == t.threshold {
		return n, Tripped
	}
	return n, Steady
}

// Streak returns the current unhealthy streak for key.
func (t *Tracker) Streak(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[key]
}

// Reset clears key.
func (t *Tracker) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, key)
}
