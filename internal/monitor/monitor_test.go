package monitor

import (
	"testing"
	"time"
)

type countingCleaner struct{ evictions int }

func (c *countingCleaner) EvictIdle() int {
	c.evictions++
	return c.evictions
}

func TestDetectSustainedGrowth(t *testing.T) {
	base := time.Now()
	growing := make([]Sample, 6)
	for i := range growing {
		growing[i] = Sample{At: base, HeapBytes: uint64(1000 + i*100)}
	}
	if !detectSustainedGrowth(growing) {
		t.Fatal("expected sustained growth to be detected")
	}

	flat := make([]Sample, 6)
	for i := range flat {
		flat[i] = Sample{At: base, HeapBytes: 1000}
	}
	if detectSustainedGrowth(flat) {
		t.Fatal("flat samples should not trigger leak suspicion")
	}
}

func TestPerformCleanupCallsCleaner(t *testing.T) {
	cleaner := &countingCleaner{}
	m := New(time.Hour, 10, cleaner)
	m.PerformCleanup()
	if cleaner.evictions != 1 {
		t.Fatalf("expected cleaner invoked once, got %d", cleaner.evictions)
	}
}

func TestPerformCleanupNilClenerIsSafe(t *testing.T) {
	m := New(time.Hour, 10, nil)
	if got := m.PerformCleanup(); got != 0 {
		t.Fatalf("expected 0 evictions with nil cleaner, got %d", got)
	}
}
