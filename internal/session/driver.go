// Package session drives one browser automation session against the listings site.
package session

import (
	"context"
	"time"

	"github.com/jonathan/wohnblitz/internal/listings"
	"github.com/jonathan/wohnblitz/internal/types"
)

// Outcome classifies the result of a page operation.
type Outcome int

// Outcome values
const (
	OutcomeSuccess Outcome = iota
	// OutcomeEmpty means the page loaded but held no listings, which usually
	// means the site layout changed rather than that there are no offers.
	OutcomeEmpty
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Page is the result of extracting the listings page.
type Page struct {
	Outcome  Outcome
	Listings []types.Listing
	// Skipped holds one error per listing item that could not be read.
	Skipped []error
}

// SubmitResult is the outcome of one application attempt. Submitted is false
// when a form element could not be found or the submit did not go through;
// Reason then says why.
type SubmitResult struct {
	Submitted bool
	Reason    string
}

// Driver is one automation session. Implementations are not safe for
// concurrent use; each bot owns exactly one driver at a time.
type Driver interface {
	// OpenListingsPage loads the listings page and waits for the listings
	// container. A timeout is returned as a *FatalError.
	OpenListingsPage(ctx context.Context) error
	// ExtractPage reads the listings from the currently loaded page.
	ExtractPage(ctx context.Context) (*Page, error)
	// SubmitApplication fills and submits the contact form of a listing.
	// An error is returned only for driver-level failures.
	SubmitApplication(ctx context.Context, listing types.Listing, profile types.ApplicantProfile) (SubmitResult, error)
	// Cleanup releases the browser. Safe to call more than once.
	Cleanup()
}

// Factory creates a ready-to-use driver.
type Factory func(ctx context.Context) (Driver, error)

// Options configures a browser session.
type Options struct {
	ListingsURL     string
	Headless        bool
	ExecPath        string // browser binary; empty uses chromedp's lookup
	UserAgent       string
	PageTimeout     time.Duration // wait for the listings container
	ConsentTimeout  time.Duration // best-effort wait for the cookie banner
	FormTimeout     time.Duration // wait for the application form
	ActionTimeout   time.Duration // single element lookups and inputs
	ConfirmWait     time.Duration // pause after submitting
	Selectors       listings.Selectors
	Form            FormSelectors
	ConsentSelector string
}

// DefaultUserAgent is sent by the headless browser.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultOptions returns options for the WBM site.
func DefaultOptions() Options {
	return Options{
		ListingsURL:     listings.DefaultListingsURL,
		Headless:        true,
		UserAgent:       DefaultUserAgent,
		PageTimeout:     20 * time.Second,
		ConsentTimeout:  5 * time.Second,
		FormTimeout:     15 * time.Second,
		ActionTimeout:   5 * time.Second,
		ConfirmWait:     5 * time.Second,
		Selectors:       listings.DefaultSelectors(),
		Form:            DefaultFormSelectors(),
		ConsentSelector: "button.cookie-accept-all",
	}
}
