// Package maintenance runs the recurring housekeeping task: pruning old bot
// logs, checking bot health and refreshing aggregate metrics.
package maintenance

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/wohnblitz/internal/bot"
	"github.com/jonathan/wohnblitz/internal/db"
	"github.com/jonathan/wohnblitz/internal/observability"
)

// Store is the storage the maintenance task reads and prunes.
type Store interface {
	DeleteLogsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	CountApplications(ctx context.Context, since time.Time) (int, error)
	CountApplicationsByStatus(ctx context.Context, status string, since time.Time) (int, error)
	CountApplicationsBefore(ctx context.Context, cutoff time.Time) (int, error)
	CountLogs(ctx context.Context, since time.Time) (int, error)
	CountLogsByLevel(ctx context.Context, level string, since time.Time) (int, error)
}

// BotSource exposes the bot manager's read-only views.
type BotSource interface {
	AllStatuses() []bot.Metrics
	Overview() bot.Overview
}

// Options configures the scheduler.
type Options struct {
	Interval   time.Duration
	Retention  time.Duration
	StaleAfter time.Duration
	// RetryAfter is the wait after a run that had failures.
	RetryAfter time.Duration
}

// DefaultOptions returns hourly maintenance with 30 days of log retention.
func DefaultOptions() Options {
	return Options{
		Interval:   60 * time.Minute,
		Retention:  30 * 24 * time.Hour,
		StaleAfter: 2 * time.Hour,
		RetryAfter: time.Minute,
	}
}

const oldApplicationAge = 365 * 24 * time.Hour

// BotWarning describes a bot that needs attention.
type BotWarning struct {
	UserID       uuid.UUID  `json:"user_id"`
	Status       bot.Status `json:"status"`
	LastActivity time.Time  `json:"last_activity"`
	Message      string     `json:"message"`
}

// Health is the result of one bot health check.
type Health struct {
	Tracked int          `json:"tracked"`
	Healthy int          `json:"healthy"`
	Stale   []BotWarning `json:"stale,omitempty"`
	Errored []BotWarning `json:"errored,omitempty"`
}

// Aggregates are the 24-hour activity figures.
type Aggregates struct {
	Applications24h int     `json:"applications_24h"`
	Successful24h   int     `json:"successful_applications_24h"`
	Logs24h         int     `json:"logs_24h"`
	ErrorLogs24h    int     `json:"error_logs_24h"`
	ErrorRate       float64 `json:"error_rate_24h"`
}

// Report summarizes one maintenance run.
type Report struct {
	StartedAt       time.Time         `json:"started_at"`
	FinishedAt      time.Time         `json:"finished_at"`
	LogsDeleted     int64             `json:"logs_deleted"`
	Health          Health            `json:"health"`
	Aggregates      Aggregates        `json:"aggregates"`
	OldApplications int               `json:"old_applications"`
	Overview        bot.Overview      `json:"overview"`
	Failures        map[string]string `json:"failures,omitempty"`
}

// Scheduler runs maintenance on a fixed interval.
type Scheduler struct {
	store   Store
	bots    BotSource
	metrics *observability.Registry
	opts    Options
	now     func() time.Time

	runMu sync.Mutex // serializes runs

	mu     sync.Mutex
	last   Report
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler. It does nothing until Start or RunOnce.
func New(store Store, bots BotSource, metrics *observability.Registry, opts Options) *Scheduler {
	return &Scheduler{
		store:   store,
		bots:    bots,
		metrics: metrics,
		opts:    opts,
		now:     time.Now,
	}
}

// Start launches the background loop. The first run happens immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		log.Printf("[maintenance] Already running")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	log.Printf("[maintenance] Started (interval: %s)", s.opts.Interval)
}

// Stop ends the loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Printf("[maintenance] Stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		report := s.RunOnce(ctx)

		wait := s.opts.Interval
		if len(report.Failures) > 0 && s.opts.RetryAfter > 0 && s.opts.RetryAfter < wait {
			wait = s.opts.RetryAfter
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunOnce runs every maintenance task once. A failing task is recorded in the
// report and does not prevent the others from running.
func (s *Scheduler) RunOnce(ctx context.Context) Report {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	log.Printf("[maintenance] Running maintenance tasks")
	report := Report{StartedAt: s.now()}

	s.runTask(&report, "cleanup_logs", func() error {
		deleted, err := s.CleanupOldLogs(ctx)
		report.LogsDeleted = deleted
		return err
	})
	s.runTask(&report, "health_check", func() error {
		report.Health = s.HealthCheck()
		return nil
	})
	s.runTask(&report, "aggregates", func() error {
		agg, err := s.RefreshAggregates(ctx)
		report.Aggregates = agg
		return err
	})
	s.runTask(&report, "old_applications", func() error {
		count, err := s.CountOldApplications(ctx)
		report.OldApplications = count
		return err
	})
	s.runTask(&report, "overview", func() error {
		report.Overview = s.bots.Overview()
		return nil
	})

	report.FinishedAt = s.now()
	s.metrics.Inc(observability.CounterMaintenanceRuns)

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	log.Printf("[maintenance] Finished (%d failures)", len(report.Failures))
	return report
}

func (s *Scheduler) runTask(report *Report, name string, task func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return task()
	}()
	if err == nil {
		return
	}
	log.Printf("[maintenance] Task %s failed: %v", name, err)
	s.metrics.Inc(observability.CounterMaintenanceFaults)
	if report.Failures == nil {
		report.Failures = make(map[string]string)
	}
	report.Failures[name] = err.Error()
}

// Report returns the result of the most recent run.
func (s *Scheduler) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// CleanupOldLogs deletes log entries older than the retention window. An
// entry exactly at the boundary is kept.
func (s *Scheduler) CleanupOldLogs(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.opts.Retention)
	deleted, err := s.store.DeleteLogsOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		log.Printf("[maintenance] Deleted %d log entries older than %s", deleted, cutoff.Format(time.RFC3339))
		s.metrics.Add(observability.CounterLogsDeleted, deleted)
	}
	return deleted, nil
}

// HealthCheck flags running bots without recent activity and bots in the
// error state.
func (s *Scheduler) HealthCheck() Health {
	now := s.now()
	statuses := s.bots.AllStatuses()
	h := Health{Tracked: len(statuses)}

	for _, m := range statuses {
		switch m.Status {
		case bot.StatusRunning:
			if idle := now.Sub(m.LastActivity); idle > s.opts.StaleAfter {
				log.Printf("[maintenance] Bot for user %s shows no activity since %s", m.UserID, m.LastActivity.Format(time.RFC3339))
				s.metrics.Inc(observability.CounterInactiveBots)
				h.Stale = append(h.Stale, BotWarning{
					UserID:       m.UserID,
					Status:       m.Status,
					LastActivity: m.LastActivity,
					Message:      fmt.Sprintf("no activity for %s", idle.Round(time.Minute)),
				})
				continue
			}
			h.Healthy++
		case bot.StatusError:
			msg := m.ErrorMessage
			if msg == "" {
				msg = "unknown error"
			}
			log.Printf("[maintenance] Bot for user %s is in error state: %s", m.UserID, msg)
			s.metrics.Inc(observability.CounterErrorBots)
			h.Errored = append(h.Errored, BotWarning{
				UserID:       m.UserID,
				Status:       m.Status,
				LastActivity: m.LastActivity,
				Message:      msg,
			})
		}
	}

	s.metrics.SetGauge(observability.GaugeHealthyBots, float64(h.Healthy))
	return h
}

// RefreshAggregates recomputes the 24-hour figures and publishes them as
// gauges. The error rate gauge is only updated when there were log entries.
func (s *Scheduler) RefreshAggregates(ctx context.Context) (Aggregates, error) {
	since := s.now().Add(-24 * time.Hour)
	var agg Aggregates
	var err error

	if agg.Applications24h, err = s.store.CountApplications(ctx, since); err != nil {
		return agg, err
	}
	for _, status := range []string{db.ApplicationStatusSent, db.ApplicationStatusResponded} {
		n, err := s.store.CountApplicationsByStatus(ctx, status, since)
		if err != nil {
			return agg, err
		}
		agg.Successful24h += n
	}
	if agg.ErrorLogs24h, err = s.store.CountLogsByLevel(ctx, db.LogLevelError, since); err != nil {
		return agg, err
	}
	if agg.Logs24h, err = s.store.CountLogs(ctx, since); err != nil {
		return agg, err
	}

	s.metrics.SetGauge(observability.GaugeApplications24h, float64(agg.Applications24h))
	s.metrics.SetGauge(observability.GaugeSuccessful24h, float64(agg.Successful24h))
	s.metrics.SetGauge(observability.GaugeErrorLogs24h, float64(agg.ErrorLogs24h))
	if agg.Logs24h > 0 {
		agg.ErrorRate = float64(agg.ErrorLogs24h) / float64(agg.Logs24h) * 100
		s.metrics.SetGauge(observability.GaugeErrorRate, agg.ErrorRate)
	}

	log.Printf("[maintenance] Metrics updated: %d applications, %d successful, %d errors",
		agg.Applications24h, agg.Successful24h, agg.ErrorLogs24h)
	return agg, nil
}

// CountOldApplications counts applications older than one year. They are
// reported, not deleted.
func (s *Scheduler) CountOldApplications(ctx context.Context) (int, error) {
	count, err := s.store.CountApplicationsBefore(ctx, s.now().Add(-oldApplicationAge))
	if err != nil {
		return 0, err
	}
	if count > 0 {
		log.Printf("[maintenance] Found %d applications older than one year", count)
	}
	s.metrics.SetGauge(observability.GaugeOldApplications, float64(count))
	return count, nil
}
