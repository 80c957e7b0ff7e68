// Package observability provides runtime counters and formatted output
// utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/jonathan/wohnblitz/internal/listings"
	"github.com/jonathan/wohnblitz/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintFilterSettings outputs the filter a bot would run with.
func (p *Printer) PrintFilterSettings(settings types.FilterSettings) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Max rent:   %.2f €\n", settings.MaxRent))
	sb.WriteString(fmt.Sprintf("Min rooms:  %d\n", settings.MinRooms))
	sb.WriteString(fmt.Sprintf("WBS:        %s\n", settings.WBS))
	if len(settings.ExcludedAreas) > 0 {
		sb.WriteString(fmt.Sprintf("Excluded:   %s", strings.Join(settings.ExcludedAreas, ", ")))
	} else {
		sb.WriteString("Excluded:   none")
	}
	p.printBox("FILTER SETTINGS", sb.String())
}

// PrintListings outputs the extracted listings and whether the filter accepts
// each one.
func (p *Printer) PrintListings(found []types.Listing, settings types.FilterSettings) {
	if len(found) == 0 {
		p.printBox("LISTINGS", "No listings found")
		return
	}

	accepted := 0
	for _, l := range found {
		if listings.Accepts(l, settings) {
			accepted++
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d listings, %d match the filter:\n\n", len(found), accepted))

	count := min(len(found), maxItemsToShow)
	for i := 0; i < count; i++ {
		l := found[i]
		mark := "✓"
		if reason := listings.Evaluate(l, settings); reason != listings.RejectNone {
			mark = "✗ " + reason.String()
		}
		sb.WriteString(fmt.Sprintf("• %s\n", l.Title))
		sb.WriteString(fmt.Sprintf("  %s | %d rooms | %s", l.RentLabel(), l.Rooms, l.Area))
		if l.WBS {
			sb.WriteString(" | WBS")
		}
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("  [%s]\n", mark))
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(found) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more listings", len(found)-maxItemsToShow))
	}

	p.printBox("LISTINGS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintSkipped outputs the listing items that could not be read.
func (p *Printer) PrintSkipped(errs []error) {
	if len(errs) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Skipped %d items:\n\n", len(errs)))
	for i, err := range errs {
		sb.WriteString(fmt.Sprintf("⚠ %s", err))
		if i < len(errs)-1 {
			sb.WriteString("\n")
		}
	}
	p.printBox("SKIPPED ITEMS", sb.String())
}

// PrintMetrics outputs a registry snapshot, sorted by name.
func (p *Printer) PrintMetrics(snap Snapshot) {
	if len(snap.Counters) == 0 && len(snap.Gauges) == 0 {
		p.printBox("METRICS", "No metrics recorded")
		return
	}

	var sb strings.Builder
	gauges := slices.Sorted(maps.Keys(snap.Gauges))
	for _, name := range gauges {
		sb.WriteString(fmt.Sprintf("%-28s %10.2f\n", name, snap.Gauges[name]))
	}
	if len(gauges) > 0 && len(snap.Counters) > 0 {
		sb.WriteString("\n")
	}
	for _, name := range slices.Sorted(maps.Keys(snap.Counters)) {
		sb.WriteString(fmt.Sprintf("%-28s %10d\n", name, snap.Counters[name]))
	}
	p.printBox("METRICS", strings.TrimSuffix(sb.String(), "\n"))
}
