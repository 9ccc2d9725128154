package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Date parsing errors. ErrAmbiguousDate is returned when a slash date could
// be read as either MM/DD or DD/MM; callers re-prompt instead of guessing.
var (
	ErrUnparsableDate = errors.New("could not parse date")
	ErrAmbiguousDate  = errors.New("ambiguous date: month and day cannot be distinguished")
)

// exactLayouts is the first tier: whole-input layout parses, tried in order.
var exactLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
}

var (
	isoDateRegex   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	slashDateRegex = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})\b`)
	monthDayRegex  = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	dayMonthRegex  = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\.?,?\s+(\d{4})\b`)
)

var monthsByName = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// ParseDate extracts a calendar date from free text. The first tier tries
// whole-input layouts; the second scans for ISO, month-name, and slash
// patterns anywhere in the text ("born April 12, 1985"). Slash dates where
// both leading fields are 12 or less and differ return ErrAmbiguousDate.
func ParseDate(input string) (time.Time, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return time.Time{}, ErrUnparsableDate
	}

	for _, layout := range exactLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}

	if m := isoDateRegex.FindStringSubmatch(trimmed); m != nil {
		return buildDate(m[1], m[2], m[3])
	}
	if m := monthDayRegex.FindStringSubmatch(trimmed); m != nil {
		month := monthsByName[strings.ToLower(m[1])]
		return buildMonthDate(m[3], month, m[2])
	}
	if m := dayMonthRegex.FindStringSubmatch(trimmed); m != nil {
		month := monthsByName[strings.ToLower(m[2])]
		return buildMonthDate(m[3], month, m[1])
	}
	if m := slashDateRegex.FindStringSubmatch(trimmed); m != nil {
		return parseSlashDate(m[1], m[2], m[3])
	}

	return time.Time{}, ErrUnparsableDate
}

// NormalizeDate returns the ISO calendar date for any parseable
// representation, or the input unchanged when parsing fails. Used for
// record matching where raw values must still compare equal to themselves.
func NormalizeDate(input string) string {
	t, err := ParseDate(input)
	if err != nil {
		return strings.TrimSpace(input)
	}
	return t.Format("2006-01-02")
}

func parseSlashDate(first, second, year string) (time.Time, error) {
	a, err := strconv.Atoi(first)
	if err != nil {
		return time.Time{}, ErrUnparsableDate
	}
	b, err := strconv.Atoi(second)
	if err != nil {
		return time.Time{}, ErrUnparsableDate
	}
	// Both fields could be a month: refuse to guess MM/DD vs DD/MM.
	if a <= 12 && b <= 12 && a != b {
		return time.Time{}, ErrAmbiguousDate
	}
	month, day := a, b
	if a > 12 {
		// First field must be the day.
		month, day = b, a
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, ErrUnparsableDate
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, ErrUnparsableDate
	}
	if y < 100 {
		if y > 30 {
			y += 1900
		} else {
			y += 2000
		}
	}
	return checkedDate(y, time.Month(month), day)
}

func buildDate(year, month, day string) (time.Time, error) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, ErrUnparsableDate
	}
	if m < 1 || m > 12 {
		return time.Time{}, ErrUnparsableDate
	}
	return checkedDate(y, time.Month(m), d)
}

func buildMonthDate(year string, month time.Month, day string) (time.Time, error) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, ErrUnparsableDate
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return time.Time{}, ErrUnparsableDate
	}
	return checkedDate(y, month, d)
}

func checkedDate(year int, month time.Month, day int) (time.Time, error) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 30 -> Mar 2); reject those.
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d", ErrUnparsableDate, year, month, day)
	}
	return t, nil
}
