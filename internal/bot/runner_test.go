package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/wohnblitz/internal/db"
	"github.com/jonathan/wohnblitz/internal/session"
	"github.com/jonathan/wohnblitz/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBot_AppliesToMatchingListings(t *testing.T) {
	driver := newFakeDriver(
		listing("a", "Mitte", 1000, 2),
		listing("b", "Mitte", 1300, 2),
		listing("c", "Spandau", 900, 3),
		listing("d", "Pankow", 800, 3),
	)
	driver.page.Skipped = []error{errors.New("item 4: no detail link")}
	driver.submit = func(l types.Listing) (session.SubmitResult, error) {
		if l.ID == "d" {
			return session.SubmitResult{Submitted: false, Reason: "submit button not found"}, nil
		}
		return session.SubmitResult{Submitted: true}, nil
	}
	h := newHarness(testOptions(), driver)
	userID := uuid.New()

	require.True(t, h.manager.Start(context.Background(), userID).Success)
	m := h.waitForAction(t, userID, "Waiting for next check")

	assert.Equal(t, StatusRunning, m.Status)
	assert.Equal(t, 2, m.ListingsFound)
	assert.Equal(t, 1, m.ApplicationsSent)

	assert.Equal(t, db.ApplicationStatusSent, h.store.statusOf("a"))
	assert.Equal(t, db.ApplicationStatusRejected, h.store.statusOf("d"))
	assert.Empty(t, h.store.statusOf("b"))
	assert.Empty(t, h.store.statusOf("c"))

	applyErrors := h.store.logsWith(db.LogLevelError, db.LogActionApply)
	require.Len(t, applyErrors, 1)
	assert.Equal(t, "d", applyErrors[0].ListingID)
	assert.Equal(t, "submit button not found", applyErrors[0].Details["reason"])

	var sentLogs int
	for _, entry := range h.store.logsWith(db.LogLevelInfo, db.LogActionApply) {
		if entry.ListingID == "a" {
			sentLogs++
		}
	}
	assert.Equal(t, 2, sentLogs, "created and sent")
	assert.Len(t, h.store.logsWith(db.LogLevelWarning, db.LogActionCrawl), 1)

	require.True(t, h.manager.Stop(context.Background(), userID).Success)
}

func TestBot_SkipsListingsAlreadySeen(t *testing.T) {
	driver := newFakeDriver(listing("a", "Mitte", 1000, 2))
	opts := testOptions()
	opts.PollInterval = time.Millisecond
	h := newHarness(opts, driver)
	userID := uuid.New()

	require.True(t, h.manager.Start(context.Background(), userID).Success)
	require.Eventually(t, func() bool {
		opens, _ := driver.counts()
		return opens >= 3
	}, 2*time.Second, time.Millisecond)
	require.True(t, h.manager.Stop(context.Background(), userID).Success)

	assert.Equal(t, 1, h.store.appCount())
	m, _ := h.manager.Status(userID)
	assert.Equal(t, 1, m.ListingsFound)
}

func TestBot_EmptyPageIsReportedNotFatal(t *testing.T) {
	driver := newFakeDriver()
	driver.page.Outcome = session.OutcomeEmpty
	h := newHarness(testOptions(), driver)
	userID := uuid.New()

	require.True(t, h.manager.Start(context.Background(), userID).Success)
	m := h.waitForAction(t, userID, "Waiting for next check")

	assert.Equal(t, StatusRunning, m.Status)
	assert.Len(t, h.store.logsWith(db.LogLevelWarning, db.LogActionCrawl), 1)
	assert.Empty(t, h.store.logsWith(db.LogLevelError, db.LogActionError))
	assert.Equal(t, 1, h.factory.count())
	h.manager.Stop(context.Background(), userID)
}

func TestBot_RecoversFromFatalError(t *testing.T) {
	broken := newFakeDriver()
	broken.openErrs = []error{&session.FatalError{Op: "open", Message: "listings container did not appear"}}
	healthy := newFakeDriver(listing("a", "Mitte", 1000, 2))
	h := newHarness(testOptions(), broken, healthy)
	userID := uuid.New()

	require.True(t, h.manager.Start(context.Background(), userID).Success)
	m := h.waitForAction(t, userID, "Waiting for next check")

	assert.Equal(t, StatusRunning, m.Status)
	assert.Empty(t, m.ErrorMessage)
	assert.Equal(t, 2, h.factory.count())
	_, brokenCleanups := broken.counts()
	assert.Equal(t, 1, brokenCleanups)
	assert.Len(t, h.store.logsWith(db.LogLevelError, db.LogActionError), 1)
	assert.Equal(t, db.ApplicationStatusSent, h.store.statusOf("a"))
	h.manager.Stop(context.Background(), userID)
}

func TestBot_RecoversFromPanicInCycle(t *testing.T) {
	crashing := newFakeDriver(listing("a", "Mitte", 1000, 2))
	crashing.submit = func(types.Listing) (session.SubmitResult, error) {
		var fields map[string]string
		fields["name"] = "Muster"
		return session.SubmitResult{Submitted: true}, nil
	}
	healthy := newFakeDriver(listing("b", "Mitte", 1000, 2))
	h := newHarness(testOptions(), crashing, healthy)
	userID := uuid.New()

	require.True(t, h.manager.Start(context.Background(), userID).Success)
	m := h.waitForAction(t, userID, "Waiting for next check")

	assert.Equal(t, StatusRunning, m.Status)
	assert.Empty(t, m.ErrorMessage)
	assert.Equal(t, 2, h.factory.count())
	_, crashedCleanups := crashing.counts()
	assert.Equal(t, 1, crashedCleanups)

	errs := h.store.logsWith(db.LogLevelError, db.LogActionError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "assignment to entry in nil map")
	assert.Equal(t, db.ApplicationStatusSent, h.store.statusOf("b"))
	require.True(t, h.manager.Stop(context.Background(), userID).Success)
}

func TestBot_UnrecordedApplicationIsLoggedAndRetried(t *testing.T) {
	driver := newFakeDriver(listing("a", "Mitte", 1000, 2))
	opts := testOptions()
	opts.PollInterval = time.Millisecond
	h := newHarness(opts, driver)
	h.store.setCreateErr(errors.New("value too long for type character varying(200)"))
	userID := uuid.New()

	require.True(t, h.manager.Start(context.Background(), userID).Success)
	require.Eventually(t, func() bool {
		return len(h.store.logsWith(db.LogLevelError, db.LogActionApply)) >= 2
	}, 2*time.Second, time.Millisecond, "failed insert is logged on every poll")

	failed := h.store.logsWith(db.LogLevelError, db.LogActionApply)[0]
	assert.Equal(t, "a", failed.ListingID)
	assert.Contains(t, failed.Details["error"], "character varying(200)")
	assert.Equal(t, 0, h.store.appCount())

	h.store.setCreateErr(nil)
	require.Eventually(t, func() bool {
		return h.store.statusOf("a") == db.ApplicationStatusSent
	}, 2*time.Second, time.Millisecond)
	require.True(t, h.manager.Stop(context.Background(), userID).Success)

	m, _ := h.manager.Status(userID)
	assert.Equal(t, 1, m.ApplicationsSent)
	assert.Equal(t, 1, h.store.appCount())
}

func TestBot_StopsWhenRestartFails(t *testing.T) {
	broken := newFakeDriver()
	broken.openErrs = []error{errors.New("net::ERR_CONNECTION_RESET")}
	h := newHarness(testOptions(), broken)
	h.factory.errs[1] = errors.New("chrome not found")
	userID := uuid.New()

	require.True(t, h.manager.Start(context.Background(), userID).Success)
	m := h.waitForExit(t, userID)

	assert.Equal(t, StatusStopped, m.Status)
	assert.Contains(t, m.ErrorMessage, "restart failed")
	assert.Contains(t, m.ErrorMessage, "chrome not found")
}

func TestBot_GivesUpAfterMaxRestarts(t *testing.T) {
	fatal := &session.FatalError{Op: "open", Message: "timeout"}
	broken := newFakeDriver()
	broken.openErrs = []error{fatal, fatal, fatal, fatal, fatal}
	opts := testOptions()
	opts.MaxRestarts = 2
	h := newHarness(opts, broken)
	userID := uuid.New()

	require.True(t, h.manager.Start(context.Background(), userID).Success)
	m := h.waitForExit(t, userID)

	assert.Equal(t, StatusStopped, m.Status)
	assert.Contains(t, m.ErrorMessage, "gave up after 3 consecutive failures")
	assert.Equal(t, 3, h.factory.count())
	assert.Len(t, h.store.logsWith(db.LogLevelError, db.LogActionError), 3)
}

func TestBot_InitialSessionFailure(t *testing.T) {
	h := newHarness(testOptions(), newFakeDriver())
	h.factory.errs[0] = errors.New("chrome not found")
	userID := uuid.New()

	require.True(t, h.manager.Start(context.Background(), userID).Success)
	m := h.waitForExit(t, userID)

	assert.Equal(t, StatusError, m.Status)
	assert.Contains(t, m.ErrorMessage, "chrome not found")

	// The slot is free again.
	require.True(t, h.manager.Start(context.Background(), userID).Success)
	h.manager.Stop(context.Background(), userID)
}

func TestBot_Cooldown(t *testing.T) {
	b := &Bot{opts: Options{ErrorCooldown: 5 * time.Minute, MaxCooldown: 40 * time.Minute}}

	assert.Equal(t, 5*time.Minute, b.cooldown(1))
	assert.Equal(t, 10*time.Minute, b.cooldown(2))
	assert.Equal(t, 20*time.Minute, b.cooldown(3))
	assert.Equal(t, 40*time.Minute, b.cooldown(4))
	assert.Equal(t, 40*time.Minute, b.cooldown(9))

	b.opts.MaxCooldown = 0
	assert.Equal(t, 5*time.Minute, b.cooldown(1))
}

func TestBot_PauseWithinBounds(t *testing.T) {
	b := &Bot{opts: Options{PauseMin: 5 * time.Second, PauseMax: 15 * time.Second}}
	for range 50 {
		p := b.pause()
		assert.GreaterOrEqual(t, p, 5*time.Second)
		assert.Less(t, p, 15*time.Second)
	}

	b.opts.PauseMax = 0
	assert.Equal(t, 5*time.Second, b.pause())
}

func TestMetricsUpdate_StoppingIsSticky(t *testing.T) {
	m := &Metrics{Status: StatusStopping}

	Transition(StatusRunning, "Bot restarted after error").apply(m)
	assert.Equal(t, StatusStopping, m.Status)
	assert.Equal(t, "Bot restarted after error", m.CurrentAction)

	Transition(StatusStopped, "Bot stopped").apply(m)
	assert.Equal(t, StatusStopped, m.Status)
}

func TestMetricsUpdate_Counters(t *testing.T) {
	msg := "boom"
	m := &Metrics{Status: StatusRunning, ListingsFound: 2}

	MetricsUpdate{AddListingsFound: 3, AddApplicationsSent: 1, ErrorMessage: &msg}.apply(m)
	assert.Equal(t, 5, m.ListingsFound)
	assert.Equal(t, 1, m.ApplicationsSent)
	assert.Equal(t, "boom", m.ErrorMessage)

	MetricsUpdate{ClearError: true}.apply(m)
	assert.Empty(t, m.ErrorMessage)
}
