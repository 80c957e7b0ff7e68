package listings

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jonathan/wohnblitz/internal/types"
)

var (
	// German formatted amount: "1.234,56" or "899" or "899,00"
	amountPattern = regexp.MustCompile(`\d{1,3}(?:\.\d{3})+(?:,\d+)?|\d+(?:,\d+)?`)
	roomsPattern  = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	wbsPattern    = regexp.MustCompile(`(?i)\bwbs\b`)
)

// ParseRent parses a German formatted rent such as "1.234,56 €".
// Returns types.UnparseableRent when no amount is found.
func ParseRent(text string) float64 {
	match := amountPattern.FindString(text)
	if match == "" {
		return types.UnparseableRent
	}
	normalized := strings.ReplaceAll(match, ".", "")
	normalized = strings.Replace(normalized, ",", ".", 1)
	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return types.UnparseableRent
	}
	return value
}

// ParseRooms parses a room count, truncating half rooms ("2,5" → 2).
// Returns 0 when no number is found.
func ParseRooms(text string) int {
	match := roomsPattern.FindString(text)
	if match == "" {
		return 0
	}
	value, err := strconv.ParseFloat(strings.Replace(match, ",", ".", 1), 64)
	if err != nil {
		return 0
	}
	return int(value)
}

// MentionsWBS reports whether text contains the WBS marker as a word.
func MentionsWBS(text string) bool {
	return wbsPattern.MatchString(text)
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
