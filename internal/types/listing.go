// Package types provides type definitions for structured data shared across the wohnblitz packages.
package types

import (
	"fmt"
	"math"
)

// UnknownText is substituted for listing text fields that could not be read from the page.
const UnknownText = "unknown"

// UnparseableRent marks a rent that could not be parsed. It compares greater
// than every filter limit, so such listings never pass a rent filter.
var UnparseableRent = math.Inf(1)

// Listing is one apartment offer extracted from the listings page.
type Listing struct {
	ID      string  `json:"id"`
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Address string  `json:"address"`
	Area    string  `json:"area"`
	Rent    float64 `json:"rent"`
	Rooms   int     `json:"rooms"`
	WBS     bool    `json:"wbs"`
}

// HasRent reports whether the rent was parsed from the page.
func (l Listing) HasRent() bool {
	return !math.IsInf(l.Rent, 1)
}

// RentLabel renders the rent for log messages and CLI output.
func (l Listing) RentLabel() string {
	if !l.HasRent() {
		return "n/a"
	}
	return fmt.Sprintf("%.2f €", l.Rent)
}
