package alert

import "sync"

// FailureTracker counts consecutive failures per key.
type FailureTracker struct {
	mu        sync.Mutex
	threshold int
	counts    map[string]int
}

func NewFailureTracker(threshold int) *FailureTracker {
	return &FailureTracker{
		threshold: threshold,
		counts:    make(map[string]int),
	}
}

// Failure records a failure for key. It returns the running count and whether
// this failure is the one that reached the threshold.
func (t *FailureTracker) Failure(key string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts[key]++
	n := t.counts[key]
	return n, n == t.threshold
}

func (t *FailureTracker) Success(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.counts, key)
}
