package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/wohnblitz/internal/db"
	"github.com/jonathan/wohnblitz/internal/session"
	"github.com/jonathan/wohnblitz/internal/types"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	mu       sync.Mutex
	page     *session.Page
	openErrs []error
	submit   func(types.Listing) (session.SubmitResult, error)
	opens    int
	cleanups int

	// block, when set, holds OpenListingsPage until closed. entered is
	// closed on the first call.
	block   chan struct{}
	entered chan struct{}
}

func newFakeDriver(found ...types.Listing) *fakeDriver {
	return &fakeDriver{page: &session.Page{Outcome: session.OutcomeSuccess, Listings: found}}
}

func (d *fakeDriver) OpenListingsPage(ctx context.Context) error {
	d.mu.Lock()
	call := d.opens
	d.opens++
	block, entered := d.block, d.entered
	var err error
	if call < len(d.openErrs) {
		err = d.openErrs[call]
	}
	d.mu.Unlock()

	if block != nil {
		if call == 0 && entered != nil {
			close(entered)
		}
		<-block
	}
	return err
}

func (d *fakeDriver) ExtractPage(ctx context.Context) (*session.Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	page := *d.page
	return &page, nil
}

func (d *fakeDriver) SubmitApplication(ctx context.Context, listing types.Listing, profile types.ApplicantProfile) (session.SubmitResult, error) {
	if d.submit == nil {
		return session.SubmitResult{Submitted: true}, nil
	}
	return d.submit(listing)
}

func (d *fakeDriver) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleanups++
}

func (d *fakeDriver) counts() (opens, cleanups int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens, d.cleanups
}

// fakeFactory hands out drivers in order, repeating the last one.
type fakeFactory struct {
	mu      sync.Mutex
	drivers []*fakeDriver
	errs    map[int]error
	created int
}

func (f *fakeFactory) New(ctx context.Context) (session.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.created
	f.created++
	if err := f.errs[call]; err != nil {
		return nil, err
	}
	idx := min(call, len(f.drivers)-1)
	return f.drivers[idx], nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

type fakeStore struct {
	mu        sync.Mutex
	apps      []*db.Application
	logs      []db.BotLogInput
	createErr error
}

func (s *fakeStore) setCreateErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr = err
}

func (s *fakeStore) CreateApplication(ctx context.Context, input db.ApplicationInput) (*db.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	app := &db.Application{
		ID:     uuid.New(),
		UserID: input.UserID,
		Title:  input.Title,
		Status: db.ApplicationStatusPending,
	}
	if input.ListingID != "" {
		id := input.ListingID
		app.ListingID = &id
	}
	s.apps = append(s.apps, app)
	return app, nil
}

func (s *fakeStore) UpdateApplicationStatus(ctx context.Context, id uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, app := range s.apps {
		if app.ID == id {
			app.Status = status
			return nil
		}
	}
	return db.ErrNotFound
}

func (s *fakeStore) AppendLog(ctx context.Context, input db.BotLogInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, input)
	return nil
}

// statusOf returns the status of the application for a listing.
func (s *fakeStore) statusOf(listingID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, app := range s.apps {
		if app.ListingID != nil && *app.ListingID == listingID {
			return app.Status
		}
	}
	return ""
}

func (s *fakeStore) appCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.apps)
}

func (s *fakeStore) logsWith(level, action string) []db.BotLogInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.BotLogInput
	for _, entry := range s.logs {
		if entry.Level == level && entry.Action == action {
			out = append(out, entry)
		}
	}
	return out
}

type fakeConfig struct {
	settings types.FilterSettings
	err      error

	// loading, when set, receives a value as FilterSettings is entered;
	// the call then waits for release to close.
	loading chan struct{}
	release chan struct{}
}

func (c *fakeConfig) FilterSettings(ctx context.Context, userID uuid.UUID) (types.FilterSettings, error) {
	if c.loading != nil {
		c.loading <- struct{}{}
		<-c.release
	}
	return c.settings, c.err
}

func (c *fakeConfig) ApplicantProfile(ctx context.Context, userID uuid.UUID) (types.ApplicantProfile, error) {
	return types.ApplicantProfile{LastName: "Muster", Email: "erika@example.com"}, nil
}

func testOptions() Options {
	return Options{
		PollInterval:  time.Hour,
		ErrorCooldown: time.Millisecond,
		MaxCooldown:   4 * time.Millisecond,
		MaxRestarts:   3,
		StopTimeout:   2 * time.Second,
	}
}

func testSettings() types.FilterSettings {
	return types.FilterSettings{
		MaxRent:       1200,
		MinRooms:      2,
		WBS:           types.WBSForbidden,
		ExcludedAreas: []string{"Spandau"},
	}
}

func listing(id, area string, rent float64, rooms int) types.Listing {
	return types.Listing{
		ID:      id,
		URL:     "https://example.com/" + id,
		Title:   "Wohnung " + id,
		Address: "Teststr. 1",
		Area:    area,
		Rent:    rent,
		Rooms:   rooms,
	}
}

type harness struct {
	manager *Manager
	factory *fakeFactory
	store   *fakeStore
	config  *fakeConfig
}

func newHarness(opts Options, drivers ...*fakeDriver) *harness {
	h := &harness{
		factory: &fakeFactory{drivers: drivers, errs: map[int]error{}},
		store:   &fakeStore{},
		config:  &fakeConfig{settings: testSettings()},
	}
	h.manager = NewManager(h.config, h.store, h.factory.New, opts)
	return h
}

func (h *harness) waitForAction(t *testing.T, userID uuid.UUID, prefix string) Metrics {
	t.Helper()
	var last Metrics
	require.Eventually(t, func() bool {
		last, _ = h.manager.Status(userID)
		return strings.HasPrefix(last.CurrentAction, prefix)
	}, 2*time.Second, 2*time.Millisecond, "bot never reached %q", prefix)
	return last
}

func (h *harness) waitForExit(t *testing.T, userID uuid.UUID) Metrics {
	t.Helper()
	require.Eventually(t, func() bool {
		return !h.manager.IsRunning(userID)
	}, 2*time.Second, 2*time.Millisecond, "bot never exited")
	m, _ := h.manager.Status(userID)
	return m
}
