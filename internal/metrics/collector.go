// Package metrics provides in-memory per-run stage statistics.
package metrics

import (
	"math"
	"sync"
	"time"
)

// Stage names in pipeline order.
const (
	StageLoadPrevious  = "load_previous"
	StageResolveSchema = "resolve_schema"
	StageQuery         = "query"
	StageReadResult    = "read_result"
	StagePublish       = "publish"
)

// Stages lists every stage in pipeline order.
var Stages = []string{StageLoadPrevious, StageResolveSchema, StageQuery, StageReadResult, StagePublish}

// StageMetrics holds aggregated metrics for a single stage.
type StageMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Bytes scanned or written by the stage, where applicable.
	Bytes int64
}

// StageSnapshot provides computed stats from raw metrics.
type StageSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
	Bytes       int64   `json:"bytes,omitempty"`
}

// Snapshot represents the run statistics at a point in time.
// Stages only holds stages that ran.
type Snapshot struct {
	ElapsedSeconds float64                  `json:"elapsed_seconds"`
	Stages         map[string]StageSnapshot `json:"stages"`
}

// Collector aggregates stage statistics of one run.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	stages    map[string]*StageMetrics
}

// NewCollector creates a collector for a run started at start.
func NewCollector(start time.Time) *Collector {
	return &Collector{
		startTime: start,
		stages:    make(map[string]*StageMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for a stage.
// Caller must hold write lock.
func (c *Collector) getOrCreate(stage string) *StageMetrics {
	m, ok := c.stages[stage]
	if !ok {
		m = &StageMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.stages[stage] = m
	}
	return m
}

// RecordTiming records one execution of stage.
func (c *Collector) RecordTiming(stage string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(stage)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordBytes adds n bytes to stage.
func (c *Collector) RecordBytes(stage string, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.getOrCreate(stage).Bytes += n
}

// snapshotStage creates a snapshot for a stage, returning false if it never ran.
func snapshotStage(m *StageMetrics) (StageSnapshot, bool) {
	if m == nil || m.Count == 0 {
		return StageSnapshot{}, false
	}
	return StageSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
		Bytes:       m.Bytes,
	}, true
}

// Snapshot returns a point-in-time snapshot of all stages.
func (c *Collector) Snapshot(now time.Time) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		ElapsedSeconds: now.Sub(c.startTime).Seconds(),
		Stages:         make(map[string]StageSnapshot, len(c.stages)),
	}
	for name, m := range c.stages {
		if s, ok := snapshotStage(m); ok {
			snap.Stages[name] = s
		}
	}
	return snap
}
