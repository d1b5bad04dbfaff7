// Package monitor implements the Memory & Resource Monitor (spec.md
// §4.12): periodic heap sampling, sustained-upward-trend detection, and
// a performCleanup hook wired to session eviction. Adapted from the
// teacher's pkg/guardrails/analytics.go PerformanceTracker, which tracked
// LLM call latencies over a capped ring buffer instead of heap samples.
package monitor

import (
	"runtime"
	"sync"
	"time"
)

// Sample is one heap-size observation.
type Sample struct {
	At        time.Time
	HeapBytes uint64
}

// Cleaner is invoked by performCleanup; sessionmgr.Manager implements it.
type Cleaner interface {
	EvictIdle() int
}

// Monitor periodically samples heap usage and detects sustained growth.
type Monitor struct {
	mu           sync.Mutex
	samples      []Sample
	capacity     int
	interval     time.Duration
	cleaner      Cleaner
	leakSuspected bool
	stop         chan struct{}
	done         chan struct{}
}

// New constructs a Monitor that keeps at most capacity samples and wakes
// every interval. cleaner may be nil (disables performCleanup's eviction
// step).
func New(interval time.Duration, capacity int, cleaner Cleaner) *Monitor {
	if capacity <= 0 {
		capacity = 60
	}
	return &Monitor{
		capacity: capacity,
		interval: interval,
		cleaner:  cleaner,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the background sampling loop. Call Stop to halt it.
func (m *Monitor) Start() {
	go m.run()
}

// Stop halts the sampling loop and waits for it to exit.
func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
}

func (m *Monitor) run() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, Sample{At: time.Now(), HeapBytes: stats.HeapAlloc})
	if len(m.samples) > m.capacity {
		m.samples = m.samples[len(m.samples)-m.capacity:]
	}
	m.leakSuspected = detectSustainedGrowth(m.samples)
}

// detectSustainedGrowth reports whether every sample in the trailing
// window is larger than the one before it — a simple, conservative
// monotonic-growth signal over a fixed window of 6 samples.
func detectSustainedGrowth(samples []Sample) bool {
	const window = 6
	if len(samples) < window {
		return false
	}
	tail := samples[len(samples)-window:]
	for i := 1; i < len(tail); i++ {
		if tail[i].HeapBytes <= tail[i-1].HeapBytes {
			return false
		}
	}
	return true
}

// Samples returns a copy of the retained samples.
func (m *Monitor) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sample(nil), m.samples...)
}

// LeakSuspected reports whether the last sample() observed sustained
// upward growth, i.e. a MemoryLeakSuspected diagnostic should be raised.
func (m *Monitor) LeakSuspected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leakSuspected
}

// PerformCleanup triggers idle-session eviction (if a Cleaner was
// configured) and requests a GC pass.
func (m *Monitor) PerformCleanup() int {
	evicted := 0
	if m.cleaner != nil {
		evicted = m.cleaner.EvictIdle()
	}
	runtime.GC()
	return evicted
}
