package listings

import (
	"testing"

	"github.com/jonathan/wohnblitz/internal/types"
	"github.com/stretchr/testify/assert"
)

func exampleSettings() types.FilterSettings {
	return types.FilterSettings{
		MaxRent:       1200,
		MinRooms:      2,
		WBS:           types.WBSForbidden,
		ExcludedAreas: []string{"Spandau"},
	}
}

func TestEvaluate_ExampleScenario(t *testing.T) {
	settings := exampleSettings()

	a := types.Listing{Rent: 1000, Rooms: 2, WBS: false, Area: "Mitte"}
	b := types.Listing{Rent: 1300, Rooms: 2, WBS: false, Area: "Mitte"}
	c := types.Listing{Rent: 900, Rooms: 3, WBS: false, Area: "Spandau"}

	assert.Equal(t, RejectNone, Evaluate(a, settings))
	assert.True(t, Accepts(a, settings))
	assert.Equal(t, RejectRentTooHigh, Evaluate(b, settings))
	assert.False(t, Accepts(b, settings))
	assert.Equal(t, RejectExcludedArea, Evaluate(c, settings))
	assert.False(t, Accepts(c, settings))
}

func TestEvaluate_RejectionOrder(t *testing.T) {
	settings := exampleSettings()
	// fails every rule; the area rule is reported first
	listing := types.Listing{Rent: 5000, Rooms: 1, WBS: true, Area: "spandau"}

	assert.Equal(t, RejectExcludedArea, Evaluate(listing, settings))

	listing.Area = "Mitte"
	assert.Equal(t, RejectRentTooHigh, Evaluate(listing, settings))

	listing.Rent = 800
	assert.Equal(t, RejectTooFewRooms, Evaluate(listing, settings))

	listing.Rooms = 2
	assert.Equal(t, RejectWBSMismatch, Evaluate(listing, settings))

	listing.WBS = false
	assert.Equal(t, RejectNone, Evaluate(listing, settings))
}

func TestEvaluate_FlippingSingleCondition(t *testing.T) {
	settings := exampleSettings()
	listing := types.Listing{Rent: 1300, Rooms: 2, Area: "Mitte"}
	assert.False(t, Accepts(listing, settings))

	settings.MaxRent = 1400
	assert.True(t, Accepts(listing, settings))

	settings.MinRooms = 3
	assert.False(t, Accepts(listing, settings))
}

func TestEvaluate_RentBoundaryInclusive(t *testing.T) {
	settings := exampleSettings()
	listing := types.Listing{Rent: 1200, Rooms: 2, Area: "Mitte"}
	assert.True(t, Accepts(listing, settings))
}

func TestEvaluate_UnparseableRentNeverPasses(t *testing.T) {
	settings := exampleSettings()
	settings.MaxRent = 1e12
	listing := types.Listing{Rent: types.UnparseableRent, Rooms: 4, Area: "Mitte"}
	assert.Equal(t, RejectRentTooHigh, Evaluate(listing, settings))
}

func TestEvaluate_WBSTriState(t *testing.T) {
	settings := exampleSettings()
	withWBS := types.Listing{Rent: 900, Rooms: 2, Area: "Mitte", WBS: true}
	withoutWBS := withWBS
	withoutWBS.WBS = false

	settings.WBS = types.WBSAny
	assert.True(t, Accepts(withWBS, settings))
	assert.True(t, Accepts(withoutWBS, settings))

	settings.WBS = types.WBSRequired
	assert.True(t, Accepts(withWBS, settings))
	assert.False(t, Accepts(withoutWBS, settings))

	settings.WBS = types.WBSForbidden
	assert.False(t, Accepts(withWBS, settings))
	assert.True(t, Accepts(withoutWBS, settings))
}

func TestEvaluate_Deterministic(t *testing.T) {
	settings := exampleSettings()
	listing := types.Listing{Rent: 1100, Rooms: 3, Area: "Pankow"}
	first := Evaluate(listing, settings)
	for range 10 {
		assert.Equal(t, first, Evaluate(listing, settings))
	}
	assert.Equal(t, []string{"Spandau"}, settings.ExcludedAreas)
}

func TestRejection_String(t *testing.T) {
	assert.Equal(t, "accepted", RejectNone.String())
	assert.Equal(t, "rent too high", RejectRentTooHigh.String())
	assert.Equal(t, "unknown", Rejection(42).String())
}
