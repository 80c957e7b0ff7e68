package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/jonathan/wohnblitz/internal/listings"
	"github.com/jonathan/wohnblitz/internal/types"
)

// ChromeSession is a Driver backed by a headless Chrome controlled through chromedp.
type ChromeSession struct {
	opts      Options
	extractor *listings.Extractor

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewChromeSession launches a browser and returns a session bound to it.
// Requires Chrome/Chromium to be installed on the system.
func NewChromeSession(ctx context.Context, opts Options) (*ChromeSession, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(1920, 1080),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	// Suppress chromedp log noise
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	// The first Run starts the browser; it must use the browser context itself
	// so the process lives as long as the session.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, &FatalError{Op: "start", Message: "failed to launch browser", Cause: err}
	}

	extractor := listings.NewExtractor(opts.ListingsURL)
	extractor.Selectors = opts.Selectors

	return &ChromeSession{
		opts:          opts,
		extractor:     extractor,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// NewChromeFactory returns a Factory launching a new ChromeSession per call.
func NewChromeFactory(opts Options) Factory {
	return func(ctx context.Context) (Driver, error) {
		return NewChromeSession(ctx, opts)
	}
}

// OpenListingsPage navigates to the listings page, dismisses the cookie
// banner if one shows up, and waits for the first listing item.
func (s *ChromeSession) OpenListingsPage(ctx context.Context) error {
	const op = "open listings page"
	if s.closed.Load() {
		return ErrDriverClosed
	}

	navCtx, cancel := s.opContext(ctx, s.opts.PageTimeout)
	defer cancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(s.opts.ListingsURL)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &FatalError{Op: op, Message: "navigation failed", Cause: err}
	}

	s.dismissConsent(ctx)

	waitCtx, cancelWait := s.opContext(ctx, s.opts.PageTimeout)
	defer cancelWait()
	if err := chromedp.Run(waitCtx, chromedp.WaitReady(s.opts.Selectors.Item, chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &FatalError{
			Op:      op,
			Message: fmt.Sprintf("listings container %q did not appear within %s", s.opts.Selectors.Item, s.opts.PageTimeout),
			Cause:   err,
		}
	}
	return nil
}

// ExtractPage snapshots the loaded page and extracts its listings.
func (s *ChromeSession) ExtractPage(ctx context.Context) (*Page, error) {
	const op = "extract page"
	if s.closed.Load() {
		return nil, ErrDriverClosed
	}

	var html string
	runCtx, cancel := s.opContext(ctx, s.opts.PageTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &FatalError{Op: op, Message: "failed to read page HTML", Cause: err}
	}

	return ExtractHTML(s.extractor, html)
}

// ExtractHTML runs the extractor over raw HTML and classifies the result.
func ExtractHTML(extractor *listings.Extractor, html string) (*Page, error) {
	doc, err := listings.ParseDocument(html)
	if err != nil {
		return nil, &FatalError{Op: "extract page", Message: "unreadable page", Cause: err}
	}

	page := &Page{Outcome: OutcomeSuccess}
	if extractor.Count(doc) == 0 {
		page.Outcome = OutcomeEmpty
		return page, nil
	}
	page.Listings, page.Skipped = extractor.Extract(doc)
	return page, nil
}

// SubmitApplication opens the listing's detail page and sends its contact form.
func (s *ChromeSession) SubmitApplication(ctx context.Context, listing types.Listing, profile types.ApplicantProfile) (SubmitResult, error) {
	const op = "submit application"
	if s.closed.Load() {
		return SubmitResult{}, ErrDriverClosed
	}

	navCtx, cancel := s.opContext(ctx, s.opts.PageTimeout)
	err := chromedp.Run(navCtx, chromedp.Navigate(listing.URL))
	cancel()
	if err != nil {
		if failure := s.driverFailure(ctx, op, err); failure != nil {
			return SubmitResult{}, failure
		}
		return notSubmitted("detail page did not load: %v", err), nil
	}

	formCtx, cancelForm := s.opContext(ctx, s.opts.FormTimeout)
	err = chromedp.Run(formCtx, chromedp.WaitReady(s.opts.Form.Form, chromedp.ByQuery))
	cancelForm()
	if err != nil {
		if failure := s.driverFailure(ctx, op, err); failure != nil {
			return SubmitResult{}, failure
		}
		return notSubmitted("application form not found"), nil
	}

	for _, field := range s.opts.Form.fields(profile) {
		filled, err := s.fillField(ctx, field)
		if err != nil {
			if failure := s.driverFailure(ctx, op, err); failure != nil {
				return SubmitResult{}, failure
			}
		}
		if !filled {
			if field.required {
				return notSubmitted("form field %q not found", field.name), nil
			}
			log.Printf("[session] Optional field %q not found, skipping", field.name)
		}
	}

	clicked, err := s.firstScript(ctx, s.opts.Form.Consent, checkScript)
	if err != nil {
		if failure := s.driverFailure(ctx, op, err); failure != nil {
			return SubmitResult{}, failure
		}
	}
	if !clicked {
		return notSubmitted("consent checkbox not found"), nil
	}

	clicked, err = s.firstScript(ctx, s.opts.Form.Submit, clickScript)
	if err != nil {
		if failure := s.driverFailure(ctx, op, err); failure != nil {
			return SubmitResult{}, failure
		}
	}
	if !clicked {
		return notSubmitted("submit button not found"), nil
	}

	// Wait for the confirmation to render
	select {
	case <-ctx.Done():
		return SubmitResult{}, ctx.Err()
	case <-s.browserCtx.Done():
		return SubmitResult{}, &FatalError{Op: op, Message: "browser closed while waiting for confirmation", Cause: s.browserCtx.Err()}
	case <-time.After(s.opts.ConfirmWait):
	}

	return SubmitResult{Submitted: true}, nil
}

// Cleanup closes the browser. It is idempotent and never panics.
func (s *ChromeSession) Cleanup() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[session] Recovered during cleanup: %v", r)
			}
		}()
		if err := chromedp.Cancel(s.browserCtx); err != nil {
			log.Printf("[session] Browser close reported: %v", err)
		}
		s.browserCancel()
		s.allocCancel()
	})
}

// opContext derives a bounded context for one browser action. It is
// cancelled when either the timeout passes or the caller's ctx ends.
func (s *ChromeSession) opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

// driverFailure returns a non-nil error when err came from a dead browser or
// a cancelled caller, and nil when it was an ordinary lookup miss.
func (s *ChromeSession) driverFailure(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if s.browserCtx.Err() != nil {
		return &FatalError{Op: op, Message: "browser is gone", Cause: err}
	}
	return nil
}

func (s *ChromeSession) dismissConsent(ctx context.Context) {
	if s.opts.ConsentSelector == "" {
		return
	}
	consentCtx, cancel := s.opContext(ctx, s.opts.ConsentTimeout)
	defer cancel()
	if err := chromedp.Run(consentCtx, chromedp.Click(s.opts.ConsentSelector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		log.Printf("[session] No cookie banner found or already accepted")
		return
	}
	log.Printf("[session] Cookie banner accepted")
}

// fillField types value into the first matching selector. It falls back to
// setting the value through script when typing fails.
func (s *ChromeSession) fillField(ctx context.Context, field formField) (bool, error) {
	if field.isSelect {
		return s.firstScript(ctx, field.selectors, selectScript(field.value))
	}

	var lastErr error
	for _, selector := range field.selectors {
		found, err := s.exists(ctx, selector)
		if err != nil {
			lastErr = err
			continue
		}
		if !found {
			continue
		}

		typeCtx, cancel := s.opContext(ctx, s.opts.ActionTimeout)
		err = chromedp.Run(typeCtx,
			chromedp.SetValue(selector, "", chromedp.ByQuery),
			chromedp.SendKeys(selector, field.value, chromedp.ByQuery),
		)
		cancel()
		if err == nil {
			return true, nil
		}
		lastErr = err

		ok, err := s.runScript(ctx, valueScript(selector, field.value))
		if err == nil && ok {
			return true, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	return false, lastErr
}

// firstScript evaluates script for each selector in order and stops at the
// first one for which the script reports success.
func (s *ChromeSession) firstScript(ctx context.Context, selectors []string, script func(selector string) string) (bool, error) {
	var lastErr error
	for _, selector := range selectors {
		ok, err := s.runScript(ctx, script(selector))
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, lastErr
}

func (s *ChromeSession) exists(ctx context.Context, selector string) (bool, error) {
	return s.runScript(ctx, fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector)))
}

func (s *ChromeSession) runScript(ctx context.Context, script string) (bool, error) {
	var ok bool
	runCtx, cancel := s.opContext(ctx, s.opts.ActionTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &ok)); err != nil {
		return false, err
	}
	return ok, nil
}

func notSubmitted(format string, args ...any) SubmitResult {
	return SubmitResult{Submitted: false, Reason: fmt.Sprintf(format, args...)}
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func checkScript(selector string) string {
	return fmt.Sprintf(`(function(){
	const el = document.querySelector(%s);
	if (!el) return false;
	if (!el.checked) el.click();
	return true;
})()`, jsString(selector))
}

func clickScript(selector string) string {
	return fmt.Sprintf(`(function(){
	const el = document.querySelector(%s);
	if (!el) return false;
	el.scrollIntoView(true);
	el.click();
	return true;
})()`, jsString(selector))
}

func valueScript(selector, value string) string {
	return fmt.Sprintf(`(function(){
	const el = document.querySelector(%s);
	if (!el) return false;
	el.value = %s;
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
})()`, jsString(selector), jsString(value))
}

func selectScript(value string) func(string) string {
	return func(selector string) string {
		return fmt.Sprintf(`(function(){
	const el = document.querySelector(%s);
	if (!el || !el.options) return false;
	const want = %s.toLowerCase();
	for (const o of el.options) {
		if (o.text.trim().toLowerCase() === want || o.value.toLowerCase() === want) {
			el.value = o.value;
			el.dispatchEvent(new Event('change', {bubbles: true}));
			return true;
		}
	}
	return false;
})()`, jsString(selector), jsString(value))
	}
}

var _ Driver = (*ChromeSession)(nil)
