package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/wohnblitz/internal/db"
	"github.com/jonathan/wohnblitz/internal/listings"
	"github.com/jonathan/wohnblitz/internal/session"
	"github.com/jonathan/wohnblitz/internal/types"
)

// Store persists applications and bot logs.
type Store interface {
	CreateApplication(ctx context.Context, input db.ApplicationInput) (*db.Application, error)
	UpdateApplicationStatus(ctx context.Context, id uuid.UUID, status string) error
	AppendLog(ctx context.Context, input db.BotLogInput) error
}

// Reporter receives metric updates from a running bot.
type Reporter interface {
	UpdateMetrics(userID uuid.UUID, update MetricsUpdate)
}

// Options controls the timing of every bot.
type Options struct {
	PollInterval  time.Duration
	PauseMin      time.Duration
	PauseMax      time.Duration
	ErrorCooldown time.Duration
	MaxCooldown   time.Duration
	// MaxRestarts is the number of consecutive failed cycles a bot recovers
	// from before giving up. Zero or less never gives up.
	MaxRestarts int
	StopTimeout time.Duration
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		PollInterval:  15 * time.Minute,
		PauseMin:      5 * time.Second,
		PauseMax:      15 * time.Second,
		ErrorCooldown: 5 * time.Minute,
		MaxCooldown:   40 * time.Minute,
		MaxRestarts:   5,
		StopTimeout:   60 * time.Second,
	}
}

const storeTimeout = 10 * time.Second

// Bot runs one user's crawl, filter and apply loop. Filter settings and
// profile are fixed for the lifetime of the bot.
type Bot struct {
	userID    uuid.UUID
	settings  types.FilterSettings
	profile   types.ApplicantProfile
	newDriver session.Factory
	store     Store
	metrics   Reporter
	opts      Options

	driver session.Driver
	// seen holds every listing id handled in this run, across session resets.
	seen map[string]struct{}

	running  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	onExit   func()
}

// New creates a bot. It does nothing until Run is called.
func New(userID uuid.UUID, settings types.FilterSettings, profile types.ApplicantProfile,
	newDriver session.Factory, store Store, metrics Reporter, opts Options) *Bot {
	b := &Bot{
		userID:    userID,
		settings:  settings,
		profile:   profile,
		newDriver: newDriver,
		store:     store,
		metrics:   metrics,
		opts:      opts,
		seen:      make(map[string]struct{}),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	b.running.Store(true)
	return b
}

// Stop asks the loop to exit at its next checkpoint. It does not wait; use
// Done for that.
func (b *Bot) Stop() {
	b.stopOnce.Do(func() {
		b.running.Store(false)
		close(b.stop)
	})
}

// Done is closed once Run has returned and the session is released.
func (b *Bot) Done() <-chan struct{} {
	return b.done
}

// Running reports whether the bot has not been asked to stop.
func (b *Bot) Running() bool {
	return b.running.Load()
}

// Run executes the loop until Stop is called, ctx is cancelled or recovery
// gives up.
func (b *Bot) Run(ctx context.Context) {
	defer close(b.done)
	defer func() {
		if b.onExit != nil {
			b.onExit()
		}
	}()

	log.Printf("[bot %s] Starting", b.userID)
	b.logEntry(ctx, db.LogLevelInfo, db.LogActionStart, "", "Bot started", nil)

	final := b.safeLoop(ctx)
	b.releaseDriver()
	b.metrics.UpdateMetrics(b.userID, final)

	b.logEntry(ctx, db.LogLevelInfo, db.LogActionStop, "", "Bot stopped", nil)
	log.Printf("[bot %s] Stopped", b.userID)
}

// safeLoop runs loop and turns a panic outside a cycle into the error state,
// so one user's bot cannot take down the process.
func (b *Bot) safeLoop(ctx context.Context) (final MetricsUpdate) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("bot crashed: %v", r)
			log.Printf("[bot %s] %s\n%s", b.userID, msg, debug.Stack())
			b.logEntry(ctx, db.LogLevelError, db.LogActionError, "", msg, nil)
			final = Transition(StatusError, "Bot crashed")
			final.ErrorMessage = &msg
		}
	}()
	return b.loop(ctx)
}

// loop returns the update describing the state the bot ended in.
func (b *Bot) loop(ctx context.Context) MetricsUpdate {
	driver, err := b.newDriver(ctx)
	if err != nil {
		if !b.active(ctx) {
			return Transition(StatusStopped, "Bot stopped")
		}
		msg := fmt.Sprintf("failed to start browser session: %v", err)
		log.Printf("[bot %s] %s", b.userID, msg)
		b.logEntry(ctx, db.LogLevelError, db.LogActionError, "", msg, nil)
		update := Transition(StatusError, "Bot could not be started")
		update.ErrorMessage = &msg
		return update
	}
	b.driver = driver
	b.metrics.UpdateMetrics(b.userID, Transition(StatusRunning, "Bot running, searching for new listings"))

	failures := 0
	for b.active(ctx) {
		err := b.safeCycle(ctx)
		if err == nil {
			failures = 0
			if !b.active(ctx) {
				break
			}
			next := time.Now().Add(b.opts.PollInterval).Format("15:04:05")
			b.metrics.UpdateMetrics(b.userID, Action("Waiting for next check at "+next))
			if !b.sleep(ctx, b.opts.PollInterval) {
				break
			}
			continue
		}
		if !b.active(ctx) {
			break
		}

		failures++
		if final, ok := b.recoverSession(ctx, err, failures); !ok {
			return final
		}
	}
	return Transition(StatusStopped, "Bot stopped")
}

// safeCycle runs one cycle, reporting a panic as a failure that goes through
// the same cooldown and session reset as a driver error.
func (b *Bot) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[bot %s] Panic during cycle: %v\n%s", b.userID, r, debug.Stack())
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()
	return b.cycle(ctx)
}

// cycle polls the listings page once and applies to every new match. The
// returned error is a session failure that requires a new session.
func (b *Bot) cycle(ctx context.Context) error {
	b.metrics.UpdateMetrics(b.userID, Action("Checking for new listings"))

	if err := b.driver.OpenListingsPage(ctx); err != nil {
		return fmt.Errorf("failed to open listings page: %w", err)
	}
	page, err := b.driver.ExtractPage(ctx)
	if err != nil {
		return fmt.Errorf("failed to extract listings: %w", err)
	}

	for _, skipped := range page.Skipped {
		log.Printf("[bot %s] Skipped listing: %v", b.userID, skipped)
		b.logEntry(ctx, db.LogLevelWarning, db.LogActionCrawl, "", "Skipped unreadable listing", map[string]any{"error": skipped.Error()})
	}
	if page.Outcome == session.OutcomeEmpty {
		log.Printf("[bot %s] Listings page held no offers", b.userID)
		b.logEntry(ctx, db.LogLevelWarning, db.LogActionCrawl, "", "No listings found on the page, the site layout may have changed", nil)
		return nil
	}

	matches := b.newMatches(page.Listings)
	b.metrics.UpdateMetrics(b.userID, MetricsUpdate{AddListingsFound: len(matches)})
	if len(matches) > 0 {
		b.logEntry(ctx, db.LogLevelInfo, db.LogActionCrawl, "",
			fmt.Sprintf("Found %d new matching listings", len(matches)), nil)
	}

	for _, listing := range matches {
		if !b.active(ctx) {
			return nil
		}
		b.metrics.UpdateMetrics(b.userID, Action("Processing listing: "+listing.Title))

		sent, err := b.apply(ctx, listing)
		if err != nil {
			return err
		}
		if sent {
			b.metrics.UpdateMetrics(b.userID, MetricsUpdate{AddApplicationsSent: 1})
		}

		if !b.active(ctx) {
			return nil
		}
		pause := b.pause()
		b.metrics.UpdateMetrics(b.userID, Action(fmt.Sprintf("Pausing for %.1f seconds", pause.Seconds())))
		if !b.sleep(ctx, pause) {
			return nil
		}
	}
	return nil
}

// newMatches drops listings already seen in this run and those the filter
// rejects. Every listing is marked seen either way.
func (b *Bot) newMatches(found []types.Listing) []types.Listing {
	var matches []types.Listing
	for _, listing := range found {
		if _, ok := b.seen[listing.ID]; ok {
			continue
		}
		b.seen[listing.ID] = struct{}{}

		if reason := listings.Evaluate(listing, b.settings); reason != listings.RejectNone {
			log.Printf("[bot %s] Listing %s rejected: %s", b.userID, listing.ID, reason)
			continue
		}
		matches = append(matches, listing)
	}
	return matches
}

// apply records a pending application, submits the form and stores the
// outcome. It returns an error only when the session itself failed.
func (b *Bot) apply(ctx context.Context, listing types.Listing) (bool, error) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	input := db.ApplicationInput{
		UserID:    b.userID,
		ListingID: listing.ID,
		Title:     listing.Title,
		Address:   listing.Address,
		Rooms:     listing.Rooms,
	}
	if listing.HasRent() {
		rent := listing.Rent
		input.Price = &rent
	}
	app, err := b.store.CreateApplication(storeCtx, input)
	if err != nil {
		log.Printf("[bot %s] Failed to record application for %s: %v", b.userID, listing.ID, err)
		b.logEntry(ctx, db.LogLevelError, db.LogActionApply, listing.ID,
			"Application could not be recorded: "+listing.Title, map[string]any{"error": err.Error()})
		// retried on the next poll
		delete(b.seen, listing.ID)
		return false, nil
	}
	b.logEntry(ctx, db.LogLevelInfo, db.LogActionApply, listing.ID, "Application created: "+listing.Title, nil)

	result, submitErr := b.driver.SubmitApplication(ctx, listing, b.profile)
	sent := submitErr == nil && result.Submitted

	status := db.ApplicationStatusRejected
	if sent {
		status = db.ApplicationStatusSent
	}
	if err := b.store.UpdateApplicationStatus(storeCtx, app.ID, status); err != nil {
		log.Printf("[bot %s] Failed to update application %s: %v", b.userID, app.ID, err)
	}

	if sent {
		b.logEntry(ctx, db.LogLevelInfo, db.LogActionApply, listing.ID, "Application sent: "+listing.Title, nil)
	} else {
		reason := result.Reason
		if submitErr != nil {
			reason = submitErr.Error()
		}
		b.logEntry(ctx, db.LogLevelError, db.LogActionApply, listing.ID,
			"Application failed: "+listing.Title, map[string]any{"reason": reason})
	}
	log.Printf("[bot %s] Application for %s: %s", b.userID, listing.ID, status)

	if submitErr != nil {
		return false, fmt.Errorf("failed to submit application: %w", submitErr)
	}
	return sent, nil
}

// recoverSession moves the bot into the error state, waits out the cooldown and
// replaces the session. It returns false with the final state when the bot
// has to give up or was stopped meanwhile.
func (b *Bot) recoverSession(ctx context.Context, cause error, failures int) (MetricsUpdate, bool) {
	msg := cause.Error()
	cooldown := b.cooldown(failures)
	log.Printf("[bot %s] Cycle failed (attempt %d): %v", b.userID, failures, cause)

	update := Transition(StatusError, fmt.Sprintf("Error occurred, restarting in %s", cooldown))
	update.ErrorMessage = &msg
	b.metrics.UpdateMetrics(b.userID, update)
	b.logEntry(ctx, db.LogLevelError, db.LogActionError, "", "Bot error: "+msg,
		map[string]any{"attempt": failures, "fatal": session.IsFatal(cause)})

	if b.opts.MaxRestarts > 0 && failures > b.opts.MaxRestarts {
		giveUp := fmt.Sprintf("gave up after %d consecutive failures: %s", failures, msg)
		log.Printf("[bot %s] %s", b.userID, giveUp)
		final := Transition(StatusStopped, "Bot stopped after repeated errors")
		final.ErrorMessage = &giveUp
		return final, false
	}

	if !b.sleep(ctx, cooldown) {
		return Transition(StatusStopped, "Bot stopped"), false
	}

	b.releaseDriver()
	driver, err := b.newDriver(ctx)
	if err != nil {
		if !b.active(ctx) {
			return Transition(StatusStopped, "Bot stopped"), false
		}
		restartErr := fmt.Sprintf("restart failed: %v", err)
		log.Printf("[bot %s] %s", b.userID, restartErr)
		b.logEntry(ctx, db.LogLevelError, db.LogActionError, "", "Bot "+restartErr, nil)
		final := Transition(StatusStopped, "Bot stopped, restart failed")
		final.ErrorMessage = &restartErr
		return final, false
	}
	b.driver = driver

	recovered := Transition(StatusRunning, "Bot restarted after error")
	recovered.ClearError = true
	b.metrics.UpdateMetrics(b.userID, recovered)
	b.logEntry(ctx, db.LogLevelInfo, db.LogActionStart, "", "Bot restarted after error", nil)
	return MetricsUpdate{}, true
}

// cooldown doubles the base cooldown for every consecutive failure, capped at
// MaxCooldown.
func (b *Bot) cooldown(failures int) time.Duration {
	d := b.opts.ErrorCooldown
	for i := 1; i < failures; i++ {
		if b.opts.MaxCooldown > 0 && d >= b.opts.MaxCooldown {
			break
		}
		d *= 2
	}
	if b.opts.MaxCooldown > 0 && d > b.opts.MaxCooldown {
		d = b.opts.MaxCooldown
	}
	return d
}

func (b *Bot) pause() time.Duration {
	if b.opts.PauseMax <= b.opts.PauseMin {
		return b.opts.PauseMin
	}
	return b.opts.PauseMin + rand.N(b.opts.PauseMax-b.opts.PauseMin)
}

// sleep waits for d and reports whether the bot should keep going.
func (b *Bot) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return b.active(ctx)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return b.active(ctx)
	case <-b.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (b *Bot) active(ctx context.Context) bool {
	return b.running.Load() && ctx.Err() == nil
}

func (b *Bot) releaseDriver() {
	if b.driver != nil {
		b.driver.Cleanup()
		b.driver = nil
	}
}

func (b *Bot) logEntry(ctx context.Context, level, action, listingID, message string, details map[string]any) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	err := b.store.AppendLog(storeCtx, db.BotLogInput{
		UserID:    b.userID,
		Level:     level,
		Message:   message,
		Action:    action,
		ListingID: listingID,
		Details:   details,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[bot %s] Failed to write log entry: %v", b.userID, err)
	}
}
