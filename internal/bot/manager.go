package bot

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/wohnblitz/internal/session"
	"github.com/jonathan/wohnblitz/internal/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ConfigProvider loads the per-user configuration a bot runs with.
type ConfigProvider interface {
	FilterSettings(ctx context.Context, userID uuid.UUID) (types.FilterSettings, error)
	ApplicantProfile(ctx context.Context, userID uuid.UUID) (types.ApplicantProfile, error)
}

// slot is a user's registry entry. bot is nil while the bot is being set up.
type slot struct {
	bot *Bot
}

var stoppedWhileStarting = Result{Success: false, Message: "bot was stopped while starting"}

// Manager owns every bot in the process and their metrics. Metrics outlive
// their bot so the last run stays visible until the process exits.
type Manager struct {
	config    ConfigProvider
	store     Store
	newDriver session.Factory
	opts      Options
	now       func() time.Time

	mu      sync.Mutex
	slots   map[uuid.UUID]*slot
	metrics map[uuid.UUID]*Metrics
	closed  bool

	stops singleflight.Group

	// ctx scopes every bot run; it is cancelled by ShutdownAll.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates an empty manager.
func NewManager(config ConfigProvider, store Store, newDriver session.Factory, opts Options) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:    config,
		store:     store,
		newDriver: newDriver,
		opts:      opts,
		now:       time.Now,
		slots:     make(map[uuid.UUID]*slot),
		metrics:   make(map[uuid.UUID]*Metrics),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches a bot for the user. It returns without waiting for the
// browser session; progress shows up in the user's status.
func (m *Manager) Start(ctx context.Context, userID uuid.UUID) Result {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Result{Success: false, Message: "bot manager is shutting down"}
	}
	if _, ok := m.slots[userID]; ok {
		status := m.snapshotLocked(userID)
		m.mu.Unlock()
		return Result{Success: false, Message: "bot is already running for this user", Status: status}
	}
	s := &slot{}
	m.slots[userID] = s
	now := m.now()
	m.metrics[userID] = &Metrics{
		UserID:        userID,
		Status:        StatusStarting,
		StartedAt:     now,
		LastActivity:  now,
		CurrentAction: "Starting bot",
	}
	m.mu.Unlock()

	settings, err := m.config.FilterSettings(ctx, userID)
	if err == nil {
		var profile types.ApplicantProfile
		profile, err = m.config.ApplicantProfile(ctx, userID)
		if err == nil {
			return m.launch(userID, s, settings, profile)
		}
	}

	msg := fmt.Sprintf("failed to load bot configuration: %v", err)
	log.Printf("[manager] Start for user %s failed: %v", userID, err)
	m.mu.Lock()
	if m.slots[userID] != s {
		m.mu.Unlock()
		return stoppedWhileStarting
	}
	m.failSlotLocked(userID, s, msg)
	status := m.snapshotLocked(userID)
	m.mu.Unlock()
	return Result{Success: false, Message: msg, Status: status}
}

func (m *Manager) launch(userID uuid.UUID, s *slot, settings types.FilterSettings, profile types.ApplicantProfile) Result {
	b := New(userID, settings, profile, m.newDriver, m.store, m, m.opts)
	b.onExit = func() { m.release(userID, b) }

	m.mu.Lock()
	if m.slots[userID] != s {
		m.mu.Unlock()
		log.Printf("[manager] Bot for user %s was stopped before launch", userID)
		return stoppedWhileStarting
	}
	if m.closed {
		m.failSlotLocked(userID, s, "bot manager is shutting down")
		m.mu.Unlock()
		return Result{Success: false, Message: "bot manager is shutting down"}
	}
	s.bot = b
	m.metrics[userID].CurrentAction = "Bot launched, opening browser session"
	status := m.snapshotLocked(userID)
	m.mu.Unlock()

	go b.Run(m.ctx)

	log.Printf("[manager] Started bot for user %s", userID)
	return Result{Success: true, Message: "bot started", Status: status}
}

// failSlotLocked drops a slot that never got a running bot.
func (m *Manager) failSlotLocked(userID uuid.UUID, s *slot, msg string) {
	if m.slots[userID] == s {
		delete(m.slots, userID)
	}
	if mt, ok := m.metrics[userID]; ok {
		mt.Status = StatusError
		mt.ErrorMessage = msg
		mt.CurrentAction = "Bot could not be started"
		mt.LastActivity = m.now()
	}
}

// release removes a bot from the registry once its loop has exited.
func (m *Manager) release(userID uuid.UUID, b *Bot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slots[userID]; ok && s.bot == b {
		delete(m.slots, userID)
	}
}

// Stop asks the user's bot to stop and waits for it, bounded by the stop
// timeout. Concurrent calls for the same user share one stop.
func (m *Manager) Stop(ctx context.Context, userID uuid.UUID) Result {
	v, _, _ := m.stops.Do(userID.String(), func() (any, error) {
		return m.stop(ctx, userID), nil
	})
	return v.(Result)
}

func (m *Manager) stop(ctx context.Context, userID uuid.UUID) Result {
	m.mu.Lock()
	s, ok := m.slots[userID]
	if !ok {
		m.mu.Unlock()
		return Result{Success: false, Message: "no bot is running for this user"}
	}
	if s.bot == nil {
		// Start is still loading configuration; dropping the slot makes
		// launch abort.
		delete(m.slots, userID)
		m.setStatusLocked(userID, Transition(StatusStopped, "Bot stopped before launch"))
		status := m.snapshotLocked(userID)
		m.mu.Unlock()
		log.Printf("[manager] Stopped bot for user %s before launch", userID)
		return Result{Success: true, Message: "bot stopped", Status: status}
	}
	b := s.bot
	m.setLocked(userID, Transition(StatusStopping, "Stopping bot"))
	m.mu.Unlock()

	log.Printf("[manager] Stopping bot for user %s", userID)
	b.Stop()

	timer := time.NewTimer(m.opts.StopTimeout)
	defer timer.Stop()
	select {
	case <-b.Done():
	case <-timer.C:
		msg := fmt.Sprintf("bot did not stop within %s", m.opts.StopTimeout)
		log.Printf("[manager] User %s: %s", userID, msg)
		m.mu.Lock()
		update := Transition(StatusError, "Stop pending, waiting for current operation")
		update.ErrorMessage = &msg
		m.setStatusLocked(userID, update)
		status := m.snapshotLocked(userID)
		m.mu.Unlock()
		return Result{Success: false, Message: msg, Status: status}
	case <-ctx.Done():
		return Result{Success: false, Message: fmt.Sprintf("stop interrupted: %v", ctx.Err())}
	}

	m.mu.Lock()
	if m.slots[userID] == s {
		delete(m.slots, userID)
	}
	m.setStatusLocked(userID, Transition(StatusStopped, "Bot stopped"))
	status := m.snapshotLocked(userID)
	m.mu.Unlock()

	log.Printf("[manager] Stopped bot for user %s", userID)
	return Result{Success: true, Message: "bot stopped", Status: status}
}

// Restart stops the user's bot if one is running and starts a new one, which
// also picks up changed settings.
func (m *Manager) Restart(ctx context.Context, userID uuid.UUID) Result {
	m.mu.Lock()
	_, running := m.slots[userID]
	m.mu.Unlock()

	if running {
		if res := m.Stop(ctx, userID); !res.Success {
			return res
		}
	}
	res := m.Start(ctx, userID)
	if res.Success {
		res.Message = "bot restarted"
	}
	return res
}

// Status returns a copy of the user's metrics. ok is false when the user's
// bot was never started in this process.
func (m *Manager) Status(userID uuid.UUID) (Metrics, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.metrics[userID]
	if !ok {
		return Metrics{UserID: userID, Status: StatusStopped}, false
	}
	return *mt, true
}

// AllStatuses returns a copy of every user's metrics, ordered by start time.
func (m *Manager) AllStatuses() []Metrics {
	m.mu.Lock()
	all := make([]Metrics, 0, len(m.metrics))
	for _, mt := range m.metrics {
		all = append(all, *mt)
	}
	m.mu.Unlock()

	slices.SortFunc(all, func(a, b Metrics) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.UserID.String(), b.UserID.String())
	})
	return all
}

// IsRunning reports whether the user has a registered bot.
func (m *Manager) IsRunning(userID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.slots[userID]
	return ok
}

// UpdateMetrics applies a partial update to the user's metrics. Updates for
// users without metrics are ignored.
func (m *Manager) UpdateMetrics(userID uuid.UUID, update MetricsUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(userID, update)
}

func (m *Manager) setLocked(userID uuid.UUID, update MetricsUpdate) {
	mt, ok := m.metrics[userID]
	if !ok {
		return
	}
	update.apply(mt)
	m.touchLocked(mt)
}

// setStatusLocked applies an update from the manager itself, which may leave
// the stopping state.
func (m *Manager) setStatusLocked(userID uuid.UUID, update MetricsUpdate) {
	mt, ok := m.metrics[userID]
	if !ok {
		return
	}
	if update.Status != nil {
		mt.Status = *update.Status
		update.Status = nil
	}
	update.apply(mt)
	m.touchLocked(mt)
}

func (m *Manager) touchLocked(mt *Metrics) {
	now := m.now()
	mt.LastActivity = now
	if !mt.StartedAt.IsZero() {
		mt.RuntimeSeconds = int64(now.Sub(mt.StartedAt).Seconds())
	}
}

func (m *Manager) snapshotLocked(userID uuid.UUID) *Metrics {
	mt, ok := m.metrics[userID]
	if !ok {
		return nil
	}
	c := *mt
	return &c
}

// StopAll stops every registered bot concurrently. New starts remain
// possible afterwards.
func (m *Manager) StopAll(ctx context.Context) Result {
	return m.stopAll(ctx)
}

// ShutdownAll stops every registered bot concurrently and refuses new starts.
// Individual failures are logged and reflected in the result.
func (m *Manager) ShutdownAll(ctx context.Context) Result {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	res := m.stopAll(ctx)

	// Bots that did not stop in time lose their context now.
	m.cancel()
	return res
}

func (m *Manager) stopAll(ctx context.Context) Result {
	m.mu.Lock()
	ids := make([]uuid.UUID, 0, len(m.slots))
	for id := range m.slots {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	log.Printf("[manager] Stopping %d bots", len(ids))

	var failed atomic.Int32
	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			res := m.Stop(ctx, id)
			if !res.Success {
				failed.Add(1)
				log.Printf("[manager] Failed to stop bot for user %s: %s", id, res.Message)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := len(ids)
	stopped := n - int(failed.Load())
	return Result{
		Success: stopped == n,
		Message: fmt.Sprintf("stopped %d of %d bots", stopped, n),
	}
}

// Overview aggregates the metrics of every bot.
func (m *Manager) Overview() Overview {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := Overview{
		TotalBots:    len(m.metrics),
		ActiveBots:   len(m.slots),
		StatusCounts: make(map[Status]int),
	}
	for _, mt := range m.metrics {
		o.StatusCounts[mt.Status]++
		o.TotalListingsFound += mt.ListingsFound
		o.TotalApplicationsSent += mt.ApplicationsSent
	}
	return o
}
