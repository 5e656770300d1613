package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// NormalizeDate parses a heterogeneous date/time fragment into a timestamp.
// Strategies are attempted in order; the first success wins. Returns
// (zero, false) when nothing matches, never an error: "date unknown" is a
// penalty for the scorer, not a rejection.
func NormalizeDate(raw string, ref time.Time) (time.Time, bool) {
	text := cleanDateString(raw)
	if text == "" {
		return time.Time{}, false
	}

	text = repairGluedDate(text)

	if t, ok := parseCompoundDate(text); ok {
		return t, true
	}
	if t, ok := parseFuzzyDate(text); ok {
		return t, true
	}
	if t, ok := parseRelativeDate(text, ref); ok {
		return t, true
	}
	if t, ok := parseNumericDate(text); ok {
		return t, true
	}
	if t, ok := parseMonthDayNoYear(text, ref); ok {
		return t, true
	}

	return time.Time{}, false
}

var monthsByName = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var weekdaysByName = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

var (
	// "September14, 20246:00 PM" and friends: month glued to day, year glued
	// to time. Seen on sites that render date parts in adjacent spans.
	gluedMonthDayRe = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sept|Sep|Oct|Nov|Dec)(\d{1,2})`)
	gluedYearTimeRe = regexp.MustCompile(`(\d{4})(\d{1,2}:\d{2})`)
	gluedDayYearRe  = regexp.MustCompile(`\b(\d{1,2})(20\d{2})\b`)

	ordinalSuffixRe = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)

	compoundRe = regexp.MustCompile(`(?i)\b(?:(?:sun|mon|tues?|wednes|thurs?|fri|satur)day,?\s+)?(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sept|Sep|Oct|Nov|Dec)\.?\s+(\d{1,2}),?\s+(\d{4})(?:\s+(?:at\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm))?`)

	dayFirstRe = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sept|Sep|Oct|Nov|Dec)\.?,?\s+(\d{4})`)

	noYearRe = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sept|Sep|Oct|Nov|Dec)\.?\s+(\d{1,2})\b`)

	slashDateRe = regexp.MustCompile(`\b(\d{1,2})[/\-](\d{1,2})[/\-](\d{4})\b`)
	isoDateRe   = regexp.MustCompile(`\b(20\d{2})-(\d{1,2})-(\d{1,2})\b`)

	nextWeekdayRe = regexp.MustCompile(`(?i)\bnext\s+(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
	thisWeekdayRe = regexp.MustCompile(`(?i)\bthis\s+(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
)

// cleanDateString removes labels commonly prefixed to date fragments.
func cleanDateString(s string) string {
	s = cleanText(s)
	sLower := strings.ToLower(s)
	prefixes := []string{
		"date:", "when:", "starts:", "start date:", "event date:", "time:",
	}
	for _, p := range prefixes {
		if idx := strings.Index(sLower, p); idx != -1 {
			s = s[idx+len(p):]
			sLower = sLower[idx+len(p):]
		}
	}
	return strings.TrimSpace(s)
}

// repairGluedDate re-inserts the separators dropped by known site markup
// bugs, so the general parsers can handle the fragment.
func repairGluedDate(s string) string {
	s = gluedMonthDayRe.ReplaceAllString(s, "$1 $2")
	s = gluedYearTimeRe.ReplaceAllString(s, "$1 $2")
	s = gluedDayYearRe.ReplaceAllString(s, "$1 $2")
	return s
}

// parseCompoundDate matches the full "weekday, Month D, YYYY [H:MM am/pm]"
// shape, weekday and time optional.
func parseCompoundDate(s string) (time.Time, bool) {
	m := compoundRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}

	month, ok := monthsByName[strings.ToLower(m[1])]
	if !ok {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if day < 1 || day > 31 {
		return time.Time{}, false
	}

	hour, minute := 0, 0
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
		if m[5] != "" {
			minute, _ = strconv.Atoi(m[5])
		}
		meridiem := strings.ToLower(m[6])
		if meridiem == "pm" && hour < 12 {
			hour += 12
		}
		if meridiem == "am" && hour == 12 {
			hour = 0
		}
	}

	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC), true
}

// parseFuzzyDate tolerates extraneous text around a recognizable date:
// "Doors open June 3, 2026 at the Armory" still yields June 3 2026.
func parseFuzzyDate(s string) (time.Time, bool) {
	s = ordinalSuffixRe.ReplaceAllString(s, "$1")

	// Exact layouts first, cheapest when the fragment is already clean.
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
		"January 2, 2006 3:04 PM",
		"January 2, 2006",
		"January 2 2006",
		"Jan 2, 2006",
		"Jan 2 2006",
		"2 January 2006",
		"2 Jan 2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	// Month-name date embedded in longer text.
	if m := compoundRe.FindStringSubmatch(s); m != nil {
		return parseCompoundDate(m[0])
	}
	if m := dayFirstRe.FindStringSubmatch(s); m != nil {
		month := monthsByName[strings.ToLower(m[2])]
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		if day >= 1 && day <= 31 {
			return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
		}
	}

	return time.Time{}, false
}

// parseRelativeDate resolves natural-language relative expressions against
// the reference time. "next <weekday>" always lands strictly in the future;
// "this <weekday>" is the current week's occurrence, rolling forward a week
// only when that weekday has already passed.
func parseRelativeDate(s string, ref time.Time) (time.Time, bool) {
	lower := strings.ToLower(s)
	day := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}

	switch {
	case strings.Contains(lower, "tomorrow"):
		return day(ref.AddDate(0, 0, 1)), true
	case strings.Contains(lower, "tonight"):
		d := day(ref)
		return time.Date(d.Year(), d.Month(), d.Day(), 19, 0, 0, 0, time.UTC), true
	case strings.Contains(lower, "today"):
		return day(ref), true
	}

	if m := nextWeekdayRe.FindStringSubmatch(lower); m != nil {
		target := weekdaysByName[m[1]]
		offset := (int(target) - int(ref.Weekday()) + 7) % 7
		if offset <= 0 {
			offset += 7
		}
		return day(ref.AddDate(0, 0, offset)), true
	}

	if m := thisWeekdayRe.FindStringSubmatch(lower); m != nil {
		target := weekdaysByName[m[1]]
		offset := (int(target) - int(ref.Weekday()) + 7) % 7
		return day(ref.AddDate(0, 0, offset)), true
	}

	if strings.Contains(lower, "this week") {
		return day(ref), true
	}

	return time.Time{}, false
}

// parseNumericDate handles bare numeric tokens. Slash dates are ambiguous:
// when one component exceeds 12 it must be the day; otherwise month-first
// (US convention) is assumed.
func parseNumericDate(s string) (time.Time, bool) {
	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if validYMD(year, month, day) {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
		}
	}

	if m := slashDateRe.FindStringSubmatch(s); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])

		month, day := a, b
		if a > 12 && b <= 12 {
			month, day = b, a
		}
		if validYMD(year, month, day) {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
		}
	}

	return time.Time{}, false
}

// parseMonthDayNoYear handles "Jan 24" style fragments with no year,
// assuming the reference year.
func parseMonthDayNoYear(s string, ref time.Time) (time.Time, bool) {
	m := noYearRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	month := monthsByName[strings.ToLower(m[1])]
	day, _ := strconv.Atoi(m[2])
	if day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(ref.Year(), month, day, 0, 0, 0, 0, time.UTC), true
}

func validYMD(year, month, day int) bool {
	return year >= 1970 && year <= 2100 && month >= 1 && month <= 12 && day >= 1 && day <= 31
}

// dateBucket formats the date portion only, ignoring time of day.
func dateBucket(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// findDateTokens scans free text for date-like tokens and returns every
// parse, used as independent date evidence for past-event suppression.
func findDateTokens(text string) []time.Time {
	var out []time.Time
	seen := map[string]bool{}

	add := func(t time.Time, ok bool) {
		if !ok {
			return
		}
		key := t.Format("2006-01-02")
		if !seen[key] {
			seen[key] = true
			out = append(out, t)
		}
	}

	for _, m := range compoundRe.FindAllString(text, -1) {
		t, ok := parseCompoundDate(m)
		add(t, ok)
	}
	for _, m := range dayFirstRe.FindAllString(text, -1) {
		t, ok := parseFuzzyDate(m)
		add(t, ok)
	}
	for _, m := range isoDateRe.FindAllString(text, -1) {
		t, ok := parseNumericDate(m)
		add(t, ok)
	}
	for _, m := range slashDateRe.FindAllString(text, -1) {
		t, ok := parseNumericDate(m)
		add(t, ok)
	}

	return out
}
