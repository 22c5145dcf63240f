package metrics

import (
	"sync"
	"time"
)

// SlidingWindow counts events inside a trailing time window.
type SlidingWindow struct {
	mu      sync.Mutex
	events  []time.Time
	window  time.Duration
	maxSize int
	now     func() time.Time
}

// NewSlidingWindow creates a window of the given span holding at most maxSize events.
func NewSlidingWindow(window time.Duration, maxSize int) *SlidingWindow {
	return &SlidingWindow{
		events:  make([]time.Time, 0, maxSize),
		window:  window,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Add records one event at the current time.
func (sw *SlidingWindow) Add() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	sw.events = append(sw.events, now)
	sw.trim(now)

	if len(sw.events) > sw.maxSize {
		sw.events = sw.events[len(sw.events)-sw.maxSize:]
	}
}

// Rate returns events per second over the window.
func (sw *SlidingWindow) Rate() float64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.trim(sw.now())
	if len(sw.events) == 0 {
		return 0
	}
	return float64(len(sw.events)) / sw.window.Seconds()
}

// trim drops events older than the window. Caller holds mu.
func (sw *SlidingWindow) trim(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for i < len(sw.events) && sw.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		sw.events = sw.events[i:]
	}
}
