// Package sampler bounds how often frames are handed to pose estimation.
package sampler

import (
	"sync"
	"time"
)

const DefaultMinInterval = 100 * time.Millisecond

// Sampler admits a frame when at least MinInterval has passed since the
// previously admitted frame. The first frame is always admitted.
type Sampler struct {
	minInterval time.Duration

	mu           sync.Mutex
	lastAccepted time.Time
	accepted     bool
}

func New(minInterval time.Duration) *Sampler {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Sampler{minInterval: minInterval}
}

func (s *Sampler) MinInterval() time.Duration {
	return s.minInterval
}

// ShouldProcess reports whether a frame arriving at now should be processed.
// Timestamps earlier than the last admitted one are rejected.
func (s *Sampler) ShouldProcess(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accepted && now.Sub(s.lastAccepted) < s.minInterval {
		return false
	}
	s.lastAccepted = now
	s.accepted = true
	return true
}

// Reset forgets the last admitted frame.
func (s *Sampler) Reset() {
	s.mu.Lock()
	s.accepted = false
	s.lastAccepted = time.Time{}
	s.mu.Unlock()
}
