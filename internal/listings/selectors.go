package listings

// Selectors holds the CSS selectors describing the listings page structure.
// The defaults target the WBM offers page; another site needs a new set.
type Selectors struct {
	Item         string   // one listing card
	DetailLink   string   // anchor to the detail / application page
	IDAttributes []string // item attributes carrying a stable id, in order of preference
	Title        string
	Address      string
	Area         string
	Rent         string
	Rooms        string
	Features     string // list entries scanned for a WBS marker
}

// DefaultListingsURL is the WBM offers page.
const DefaultListingsURL = "https://www.wbm.de/wohnungen-berlin/angebote/"

// DefaultSelectors returns the selectors for the WBM offers page.
func DefaultSelectors() Selectors {
	return Selectors{
		Item:         "div.openimmo-search-list-item",
		DetailLink:   "div.btn-holder a[title='Details']",
		IDAttributes: []string{"data-id", "data-uid"},
		Title:        "h2.imageTitle",
		Address:      "div.address",
		Area:         "div.area",
		Rent:         ".main-property-value.main-property-rent",
		Rooms:        ".main-property-value.main-property-rooms",
		Features:     "ul.check-property-list li",
	}
}
