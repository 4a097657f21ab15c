package aggregate

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Placeholder is shown when a stat has nothing usable to display.
const Placeholder = "N/A"

var (
	percentPattern = regexp.MustCompile(`[-+]?\d+(?:[.,]\d+)?\s?%`)
	amountPattern  = regexp.MustCompile(`(?i)[$€£]\s?\d[\d,]*(?:\.\d+)?(?:\s?(?:thousand|trillion|billion|million|bn|mn|k|m|b|t)\b)?`)
	numberPattern  = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)(?:\s?(thousand|trillion|billion|million|bn|mn|k|m|b|t)\b)?`)
	yearPattern    = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\b`)
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"January 2006",
	"Jan 2006",
	"2006-01",
}

// ExtractPercentage returns the first percentage-like substring ("+45%",
// "12.5 %" becomes "12.5%").
func ExtractPercentage(s string) (string, bool) {
	m := percentPattern.FindString(s)
	if m == "" {
		return "", false
	}
	return strings.ReplaceAll(m, " ", ""), true
}

// ExtractAmount returns the first currency amount ("$12M", "€3.4 billion").
func ExtractAmount(s string) (string, bool) {
	m := strings.TrimSpace(amountPattern.FindString(s))
	return m, m != ""
}

// ParseAmountMillions converts the first number in s into millions of the
// currency unit. Numbers without a magnitude are read as whole units.
func ParseAmountMillions(s string) (float64, bool) {
	m := numberPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "k", "thousand":
		return v / 1_000, true
	case "m", "mn", "million":
		return v, true
	case "b", "bn", "billion":
		return v * 1_000, true
	case "t", "trillion":
		return v * 1_000_000, true
	default:
		return v / 1_000_000, true
	}
}

// ParseDate tries the layouts the research backend is known to emit.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ExtractYear pulls a year out of a date-ish string. A full parse is tried
// first, then any plausible four-digit year.
func ExtractYear(s string) (int, bool) {
	if t, ok := ParseDate(s); ok {
		return t.Year(), true
	}
	m := yearPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return y, true
}

// Initials builds an avatar label from the first and last name parts.
func Initials(name string) string {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return ""
	}
	first := firstLetter(parts[0])
	if len(parts) == 1 {
		return first
	}
	return first + firstLetter(parts[len(parts)-1])
}

func firstLetter(word string) string {
	for _, r := range word {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return string(unicode.ToUpper(r))
		}
	}
	r, _ := utf8.DecodeRuneInString(word)
	return string(unicode.ToUpper(r))
}

func orPlaceholder(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return Placeholder
	}
	return s
}
