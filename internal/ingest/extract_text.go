package ingest

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// maxTextMiningResults bounds how much noise the last-resort strategy can
// introduce into a run.
const maxTextMiningResults = 3

// dateWindowLines is how far past a candidate title line the scanner looks
// for a date-like token.
const dateWindowLines = 4

// TextMiningExtractor is the last resort: strip chrome, split the page
// into lines, and look for short shouty or title-cased keyword lines with
// a date nearby.
type TextMiningExtractor struct{}

func (e *TextMiningExtractor) Method() ExtractionMethod { return MethodTextMining }

func (e *TextMiningExtractor) Extract(html, url string) []RawCandidate {
	lines := visibleLines(html)

	var out []RawCandidate
	for i, line := range lines {
		if len(out) >= maxTextMiningResults {
			break
		}
		if !looksLikeTitleLine(line) {
			continue
		}

		dateText := ""
		for j := i + 1; j < len(lines) && j <= i+dateWindowLines; j++ {
			if hasDateToken(lines[j]) {
				dateText = lines[j]
				break
			}
		}
		if dateText == "" {
			continue
		}

		out = append(out, RawCandidate{
			Title:     line,
			StartText: dateText,
			SourceURL: url,
			Method:    MethodTextMining,
		})
	}

	return out
}

// visibleLines strips navigation, script and style elements and returns
// the remaining text as trimmed non-empty lines.
func visibleLines(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	doc.Find("script, style, nav, header, footer, noscript").Remove()

	raw := doc.Text()
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = cleanText(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// looksLikeTitleLine accepts short ALL-CAPS or Title-Cased lines that
// mention an event keyword.
func looksLikeTitleLine(line string) bool {
	if len(line) < 5 || len(line) > 80 {
		return false
	}
	if !containsEventKeyword(line) {
		return false
	}
	return isAllCaps(line) || isTitleCased(line)
}

func isAllCaps(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter
}

// isTitleCased requires a majority of words to start with an uppercase
// letter, tolerating short connective words.
func isTitleCased(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 {
		return false
	}
	capped := 0
	for _, w := range words {
		r := []rune(w)
		if unicode.IsUpper(r[0]) || unicode.IsDigit(r[0]) || len(w) <= 3 {
			capped++
		}
	}
	return capped*2 > len(words)
}

// hasDateToken reports whether a line contains anything the scanner will
// read as a date: a month name, a weekday, or a numeric date pattern.
func hasDateToken(line string) bool {
	lower := strings.ToLower(line)
	for name := range monthsByName {
		if len(name) > 3 && strings.Contains(lower, name) {
			return true
		}
	}
	for name := range weekdaysByName {
		if strings.Contains(lower, name) {
			return true
		}
	}
	return slashDateRe.MatchString(line) || isoDateRe.MatchString(line) ||
		strings.Contains(lower, "tonight") || strings.Contains(lower, "tomorrow")
}
