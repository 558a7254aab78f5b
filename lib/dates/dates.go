// Package dates normalizes the date text found on Lithuanian school
// portals into canonical timestamps. It never guesses: text that fails
// every known pattern reports ok=false and callers must keep the date
// absent instead of substituting a default.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"hwscraper-backend/lib/timezone"
)

// genitive and nominative month forms as they appear in due-date cells
var lithuanianMonths = map[string]time.Month{
	"sausio":    time.January,
	"sausis":    time.January,
	"vasario":   time.February,
	"vasaris":   time.February,
	"kovo":      time.March,
	"kovas":     time.March,
	"balandžio": time.April,
	"balandis":  time.April,
	"gegužės":   time.May,
	"gegužė":    time.May,
	"birželio":  time.June,
	"birželis":  time.June,
	"liepos":    time.July,
	"liepa":     time.July,
	"rugpjūčio": time.August,
	"rugpjūtis": time.August,
	"rugsėjo":   time.September,
	"rugsėjis":  time.September,
	"spalio":    time.October,
	"spalis":    time.October,
	"lapkričio": time.November,
	"lapkritis": time.November,
	"gruodžio":  time.December,
	"gruodis":   time.December,
}

// due-date cells that mean "no deadline at all", which is a valid state
// distinct from an unparseable date
var noDeadlineTokens = []string{
	"neribotas",
	"neribota",
	"be termino",
	"unlimited",
}

func IsNoDeadline(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	for _, token := range noDeadlineTokens {
		if text == token || strings.Contains(text, token) {
			return true
		}
	}
	return false
}

var (
	isoRegex     = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	dottedRegex  = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})`)
	slashedRegex = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
	monthDay     = regexp.MustCompile(`([\p{L}]+)\s+(\d{1,2})`)
)

// Parse converts portal date text into a timestamp in the portal's
// timezone. Supported forms: 2025-10-15, 15.10.2025, 15/10/2025 and the
// Lithuanian month-name form "spalio 15". The month-name form carries
// no year, which is resolved against the current school year.
func Parse(text string) (time.Time, bool) {
	return ParseAt(text, timezone.Now())
}

// ParseAt is Parse with an explicit "now" for year resolution.
func ParseAt(text string, now time.Time) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}

	if m := isoRegex.FindStringSubmatch(text); m != nil {
		return newDate(m[1], m[2], m[3])
	}
	if m := dottedRegex.FindStringSubmatch(text); m != nil {
		return newDate(m[3], m[2], m[1])
	}
	if m := slashedRegex.FindStringSubmatch(text); m != nil {
		return newDate(m[3], m[2], m[1])
	}

	if m := monthDay.FindStringSubmatch(strings.ToLower(text)); m != nil {
		month, known := lithuanianMonths[m[1]]
		if !known {
			return time.Time{}, false
		}
		day, err := strconv.Atoi(m[2])
		if err != nil || day < 1 || day > 31 {
			return time.Time{}, false
		}
		return resolveMonthDay(month, day, now), true
	}

	return time.Time{}, false
}

func newDate(year, month, day string) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, false
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return time.Time{}, false
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, timezone.Location), true
}

// resolveMonthDay picks the year for a bare "month day" form so that it
// lands in the current school year, which runs September through August.
func resolveMonthDay(month time.Month, day int, now time.Time) time.Time {
	year := now.Year()

	if month >= time.September && now.Month() < time.September {
		year--
	}
	if month < time.September && now.Month() >= time.September {
		year++
	}

	return time.Date(year, month, day, 0, 0, 0, 0, timezone.Location)
}
