package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorAggregates(t *testing.T) {
	start := time.Unix(1612873200, 0)
	c := NewCollector(start)

	c.RecordTiming(StageQuery, 3*time.Second)
	c.RecordTiming(StageQuery, 1*time.Second)
	c.RecordBytes(StageQuery, 2048)
	c.RecordTiming(StagePublish, 250*time.Millisecond)

	snap := c.Snapshot(start.Add(10 * time.Second))
	assert.Equal(t, 10.0, snap.ElapsedSeconds)
	require.Len(t, snap.Stages, 2)

	q := snap.Stages[StageQuery]
	assert.Equal(t, int64(2), q.Count)
	assert.Equal(t, int64(4000), q.TotalTimeMs)
	assert.Equal(t, 2000.0, q.AvgTimeMs)
	assert.Equal(t, int64(1000), q.MinTimeMs)
	assert.Equal(t, int64(3000), q.MaxTimeMs)
	assert.Equal(t, int64(2048), q.Bytes)

	assert.Equal(t, int64(250), snap.Stages[StagePublish].TotalTimeMs)
}

func TestSnapshotSkipsStagesWithoutTimings(t *testing.T) {
	c := NewCollector(time.Unix(0, 0))
	c.RecordBytes(StageReadResult, 10)

	snap := c.Snapshot(time.Unix(0, 0))
	assert.Empty(t, snap.Stages)
}

func TestCollectorConcurrentUse(t *testing.T) {
	c := NewCollector(time.Unix(0, 0))
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordTiming(StageResolveSchema, time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), c.Snapshot(time.Unix(0, 0)).Stages[StageResolveSchema].Count)
}
