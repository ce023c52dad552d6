package data

import (
	"sync"
	"time"
)

// TimeProvider stamps created_at and completed_at on job records.
type TimeProvider interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC. It is the repositories' default.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedTimeProvider is a manually advanced clock for repository tests.
type FixedTimeProvider struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixedTimeProvider(start time.Time) *FixedTimeProvider {
	return &FixedTimeProvider{now: start.UTC()}
}

func (f *FixedTimeProvider) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *FixedTimeProvider) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
