package observability

import (
	"maps"
	"sync"
	"time"
)

// Metric names published by the maintenance task.
const (
	GaugeHealthyBots         = "healthy_bots"
	GaugeApplications24h     = "applications_24h"
	GaugeSuccessful24h       = "successful_applications_24h"
	GaugeErrorLogs24h        = "error_logs_24h"
	GaugeErrorRate           = "error_rate_24h" // percent of log entries at ERROR level
	GaugeOldApplications     = "applications_older_than_1y"
	CounterMaintenanceRuns   = "maintenance_runs"
	CounterLogsDeleted       = "logs_cleaned"
	CounterInactiveBots      = "inactive_bots_detected"
	CounterErrorBots         = "bots_in_error_state"
	CounterMaintenanceFaults = "maintenance_task_failures"
)

// Registry holds named counters and gauges. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]int64
	gauges    map[string]float64
	updatedAt time.Time
	now       func() time.Time
}

// Snapshot is a point-in-time copy of a registry.
type Snapshot struct {
	Counters  map[string]int64   `json:"counters"`
	Gauges    map[string]float64 `json:"gauges"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
		now:      time.Now,
	}
}

// Add increments a counter by n.
func (r *Registry) Add(name string, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += n
	r.updatedAt = r.now()
}

// Inc increments a counter by one.
func (r *Registry) Inc(name string) {
	r.Add(name, 1)
}

// SetGauge replaces a gauge value.
func (r *Registry) SetGauge(name string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name] = value
	r.updatedAt = r.now()
}

// Counter returns a counter's value, zero if never set.
func (r *Registry) Counter(name string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[name]
}

// Gauge returns a gauge's value and whether it was ever set.
func (r *Registry) Gauge(name string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.gauges[name]
	return v, ok
}

// Snapshot copies the current values.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		Counters:  maps.Clone(r.counters),
		Gauges:    maps.Clone(r.gauges),
		UpdatedAt: r.updatedAt,
	}
}

// Reset clears every counter and gauge.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.counters)
	clear(r.gauges)
	r.updatedAt = time.Time{}
}
