package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Default filter values used when a user has not configured (or broke) their filter.
const (
	DefaultMaxRent  = 1500.0
	DefaultMinRooms = 2
)

// DefaultExcludedAreas returns the districts excluded when the user has not set any.
func DefaultExcludedAreas() []string {
	return []string{"Spandau", "Marzahn"}
}

// WBSRequirement is the tri-state housing-subsidy filter.
type WBSRequirement string

// WBSRequirement values
const (
	WBSAny       WBSRequirement = "any"
	WBSRequired  WBSRequirement = "required"
	WBSForbidden WBSRequirement = "forbidden"
)

// UnmarshalJSON accepts null, a boolean, or one of the string values.
// true maps to required, false to forbidden and null to any.
func (w *WBSRequirement) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*w = WBSAny
	case bool:
		if v {
			*w = WBSRequired
		} else {
			*w = WBSForbidden
		}
	case string:
		parsed, err := ParseWBSRequirement(v)
		if err != nil {
			return err
		}
		*w = parsed
	default:
		return fmt.Errorf("invalid wbs requirement: %s", string(data))
	}
	return nil
}

// ParseWBSRequirement parses a textual WBS requirement. Empty input means any.
func ParseWBSRequirement(s string) (WBSRequirement, error) {
	switch WBSRequirement(strings.ToLower(strings.TrimSpace(s))) {
	case "", WBSAny:
		return WBSAny, nil
	case WBSRequired:
		return WBSRequired, nil
	case WBSForbidden:
		return WBSForbidden, nil
	default:
		return "", fmt.Errorf("invalid wbs requirement: %q", s)
	}
}

// Matches reports whether a listing's WBS flag satisfies the requirement.
func (w WBSRequirement) Matches(listingRequiresWBS bool) bool {
	switch w {
	case WBSRequired:
		return listingRequiresWBS
	case WBSForbidden:
		return !listingRequiresWBS
	default:
		return true
	}
}

// FilterSettings holds one user's listing criteria. A bot reads them once at
// start; edits take effect on the next start.
type FilterSettings struct {
	MaxRent       float64        `json:"max_rent" validate:"gt=0"`
	MinRooms      int            `json:"min_rooms" validate:"gte=0,lte=20"`
	WBS           WBSRequirement `json:"wbs_required" validate:"omitempty,oneof=any required forbidden"`
	ExcludedAreas []string       `json:"excluded_areas" validate:"dive,required"`
}

// DefaultFilterSettings returns the documented fallback filter.
func DefaultFilterSettings() FilterSettings {
	return FilterSettings{
		MaxRent:       DefaultMaxRent,
		MinRooms:      DefaultMinRooms,
		WBS:           WBSAny,
		ExcludedAreas: DefaultExcludedAreas(),
	}
}

// IsExcluded reports whether area is in the excluded list. Comparison ignores
// case and surrounding whitespace.
func (f FilterSettings) IsExcluded(area string) bool {
	area = strings.TrimSpace(area)
	for _, excluded := range f.ExcludedAreas {
		if strings.EqualFold(strings.TrimSpace(excluded), area) {
			return true
		}
	}
	return false
}
