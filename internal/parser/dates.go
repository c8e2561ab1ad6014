package parser

import (
	"strings"
	"time"
)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
// Example with pivot=20 in year 2025: "46" -> 1946 (not 2046), "24" -> 2024
var TwoDigitYearPivot = 20

// Date layouts split by year format for proper 2-digit year handling.
var (
	// ISO first: laboratory exports mostly use it.
	isoLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	fourDigitYearLayouts = []string{
		"02.01.2006 15:04:05", "02.01.2006 15:04", "02.01.2006", "2.1.2006",
	}
	twoDigitYearLayouts = []string{
		"02.01.06 15:04", "02.01.06", "2.1.06",
	}
	// HL7 TS values, most precise first.
	hl7Layouts = []string{
		"20060102150405", "200601021504", "2006010215", "20060102",
	}
)

// parseDate reads a CSV date cell. ok is false for an empty or unreadable cell.
func parseDate(s string, loc *time.Location) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}

	// Go's time.Parse interprets 2-digit years as:
	// 00-68 -> 2000-2068, 69-99 -> 1969-1999
	// We apply a consistent pivot: if year > currentYear + pivot, use previous century
	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// parseHL7Time reads an HL7 timestamp such as 201810231554. A timezone
// offset suffix ("+0100") and fractional seconds are ignored.
func parseHL7Time(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "+-"); i > 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '.'); i > 0 {
		s = s[:i]
	}
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range hl7Layouts {
		if len(s) != len(layout) {
			continue
		}
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	// Fall back to the date part of longer or odd values.
	if len(s) > 8 {
		if t, err := time.ParseInLocation("20060102", s[:8], loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
