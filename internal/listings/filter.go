package listings

import (
	"math"

	"github.com/jonathan/wohnblitz/internal/types"
)

// Rejection names the first filter rule a listing failed.
type Rejection int

// Rejection values, in evaluation order
const (
	RejectNone Rejection = iota
	RejectExcludedArea
	RejectRentTooHigh
	RejectTooFewRooms
	RejectWBSMismatch
)

func (r Rejection) String() string {
	switch r {
	case RejectNone:
		return "accepted"
	case RejectExcludedArea:
		return "excluded area"
	case RejectRentTooHigh:
		return "rent too high"
	case RejectTooFewRooms:
		return "too few rooms"
	case RejectWBSMismatch:
		return "wbs mismatch"
	default:
		return "unknown"
	}
}

// Evaluate checks a listing against the settings and returns the first rule it
// fails: excluded area, then rent, then rooms, then WBS.
func Evaluate(listing types.Listing, settings types.FilterSettings) Rejection {
	if settings.IsExcluded(listing.Area) {
		return RejectExcludedArea
	}
	if math.IsInf(listing.Rent, 1) || math.IsNaN(listing.Rent) || listing.Rent > settings.MaxRent {
		return RejectRentTooHigh
	}
	if listing.Rooms < settings.MinRooms {
		return RejectTooFewRooms
	}
	if !settings.WBS.Matches(listing.WBS) {
		return RejectWBSMismatch
	}
	return RejectNone
}

// Accepts reports whether the listing passes every filter rule.
func Accepts(listing types.Listing, settings types.FilterSettings) bool {
	return Evaluate(listing, settings) == RejectNone
}
