package observability

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_CountersAndGauges(t *testing.T) {
	r := NewRegistry()
	fixed := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	r.Inc(CounterMaintenanceRuns)
	r.Add(CounterLogsDeleted, 12)
	r.SetGauge(GaugeErrorRate, 0.25)

	assert.Equal(t, int64(1), r.Counter(CounterMaintenanceRuns))
	assert.Equal(t, int64(12), r.Counter(CounterLogsDeleted))
	assert.Equal(t, int64(0), r.Counter("missing"))

	v, ok := r.Gauge(GaugeErrorRate)
	assert.True(t, ok)
	assert.Equal(t, 0.25, v)
	_, ok = r.Gauge("missing")
	assert.False(t, ok)

	snap := r.Snapshot()
	assert.Equal(t, fixed, snap.UpdatedAt)
	assert.Equal(t, int64(12), snap.Counters[CounterLogsDeleted])
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	r.SetGauge(GaugeHealthyBots, 3)

	snap := r.Snapshot()
	snap.Gauges[GaugeHealthyBots] = 99

	v, _ := r.Gauge(GaugeHealthyBots)
	assert.Equal(t, 3.0, v)
}

func TestRegistry_Reset(t *testing.T) {
	r := NewRegistry()
	r.Inc(CounterMaintenanceRuns)
	r.SetGauge(GaugeHealthyBots, 1)

	r.Reset()

	snap := r.Snapshot()
	assert.Empty(t, snap.Counters)
	assert.Empty(t, snap.Gauges)
	assert.True(t, snap.UpdatedAt.IsZero())
}

func TestRegistry_ConcurrentAdds(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				r.Inc(CounterInactiveBots)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1000), r.Counter(CounterInactiveBots))
}
