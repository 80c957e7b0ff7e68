package listings

import (
	"encoding/hex"
	"fmt"
	"iter"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonathan/wohnblitz/internal/types"
	"github.com/zeebo/blake3"
)

// Extractor reads listing records out of a rendered listings page.
type Extractor struct {
	Selectors Selectors
	BaseURL   string
	// Now stamps fallback ids; defaults to time.Now.
	Now func() time.Time
}

// NewExtractor creates an extractor for the given page URL using the default selectors.
func NewExtractor(baseURL string) *Extractor {
	return &Extractor{
		Selectors: DefaultSelectors(),
		BaseURL:   baseURL,
		Now:       time.Now,
	}
}

// ParseDocument parses rendered HTML into a goquery document.
func ParseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ParseError{Message: "failed to parse HTML", Cause: err}
	}
	return doc, nil
}

// Count returns the number of listing items on the page.
func (e *Extractor) Count(doc *goquery.Document) int {
	return doc.Find(e.Selectors.Item).Length()
}

// Listings yields one record per listing item on the page. Items whose detail
// link cannot be determined yield an *ItemError instead; the sequence goes on
// with the next item. Unreadable fields fall back to defaults and never abort
// the item.
func (e *Extractor) Listings(doc *goquery.Document) iter.Seq2[types.Listing, error] {
	return func(yield func(types.Listing, error) bool) {
		items := doc.Find(e.Selectors.Item)
		for i := range items.Length() {
			listing, err := e.extractItem(i, items.Eq(i))
			if !yield(listing, err) {
				return
			}
		}
	}
}

// Extract collects every listing on the page, returning the skipped items separately.
func (e *Extractor) Extract(doc *goquery.Document) ([]types.Listing, []error) {
	var found []types.Listing
	var skipped []error
	for listing, err := range e.Listings(doc) {
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		found = append(found, listing)
	}
	return found, skipped
}

func (e *Extractor) extractItem(index int, item *goquery.Selection) (listing types.Listing, err error) {
	// goquery does not panic on missing nodes, but a malformed document must
	// only cost this one item
	defer func() {
		if r := recover(); r != nil {
			err = &ItemError{Index: index, Message: fmt.Sprintf("panic during extraction: %v", r)}
		}
	}()

	detailURL, err := e.detailURL(item)
	if err != nil {
		return types.Listing{}, &ItemError{Index: index, Message: "no detail link", Cause: err}
	}

	title := e.text(item, e.Selectors.Title)
	listing = types.Listing{
		ID:      e.listingID(item, detailURL),
		URL:     detailURL,
		Title:   title,
		Address: e.text(item, e.Selectors.Address),
		Area:    e.text(item, e.Selectors.Area),
		Rent:    ParseRent(item.Find(e.Selectors.Rent).First().Text()),
		Rooms:   ParseRooms(item.Find(e.Selectors.Rooms).First().Text()),
		WBS:     e.requiresWBS(item, title),
	}
	return listing, nil
}

func (e *Extractor) detailURL(item *goquery.Selection) (string, error) {
	href, ok := item.Find(e.Selectors.DetailLink).First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return "", fmt.Errorf("selector %q matched no link", e.Selectors.DetailLink)
	}

	link, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("malformed link %q: %w", href, err)
	}
	if e.BaseURL != "" {
		base, err := url.Parse(e.BaseURL)
		if err == nil {
			link = base.ResolveReference(link)
		}
	}
	if !link.IsAbs() {
		return "", fmt.Errorf("link %q is not absolute", href)
	}
	return link.String(), nil
}

func (e *Extractor) listingID(item *goquery.Selection, detailURL string) string {
	for _, attr := range e.Selectors.IDAttributes {
		if id, ok := item.Attr(attr); ok && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id)
		}
	}
	return FallbackID(detailURL, e.now())
}

// FallbackID derives an id from the detail URL and the discovery time. The
// result differs between runs, so the same offer found after a restart gets
// a new id.
func FallbackID(detailURL string, discovered time.Time) string {
	sum := blake3.Sum256([]byte(fmt.Sprintf("%s|%d", detailURL, discovered.Unix())))
	return "h" + hex.EncodeToString(sum[:8])
}

func (e *Extractor) text(item *goquery.Selection, selector string) string {
	text := cleanText(item.Find(selector).First().Text())
	if text == "" {
		return types.UnknownText
	}
	return text
}

func (e *Extractor) requiresWBS(item *goquery.Selection, title string) bool {
	if MentionsWBS(title) {
		return true
	}
	found := false
	item.Find(e.Selectors.Features).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if MentionsWBS(s.Text()) {
			found = true
			return false
		}
		return true
	})
	return found
}

func (e *Extractor) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}
