// Package filter decides whether a text fragment is a plausible message or
// page chrome that should never reach the classification service.
package filter

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Default length bounds for incremental checks.
const (
	DefaultMinLength = 3
	DefaultMaxLength = 500
)

// chromePatterns is the battery of UI-chrome heuristics, grouped the way the
// page elements they describe are grouped.
var chromePatterns = []struct {
	category string
	patterns []*regexp.Regexp
}{
	{
		category: "icons",
		patterns: compilePatterns(
			`^ic-`,
			`(?i)emoji`,
			`(?i)chevron`,
			`(?i)menu`,
			`(?i)microphone`,
			`(?i)stickers`,
			`(?i)gifs`,
			`(?i)default-contact`,
		),
	},
	{
		category: "timestamps",
		patterns: compilePatterns(
			`(?i)^\d{1,2}:\d{2}\s?(AM|PM)$`,
			`(?i)^today at`,
			`(?i)^yesterday at`,
			`(?i)^(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d`,
			`^\d{1,2}/\d{1,2}/\d{4}`,
			`(?i)refreshed`,
		),
	},
	{
		category: "css-like",
		patterns: compilePatterns(
			`^\s*$`,
			`^[\w-]+$`,
		),
	},
	{
		category: "interaction labels",
		patterns: compilePatterns(
			`^Send$`,
			`^OK, got it$`,
			`^Enter$`,
			`^Clip$`,
			`(?i)voice message`,
			`(?i)whatsapp needs`,
			`(?i)react to message`,
			`(?i)reply to message`,
			`(?i)see more options`,
			`(?i)you sent`,
		),
	},
	{
		// Our own rendered vocabulary; matching it keeps alerts from
		// re-triggering the monitor.
		category: "self",
		patterns: compilePatterns(
			`(?i)blinky`,
			`(?i)safety`,
			`(?i)threat`,
			`(?i)detected`,
			`(?i)findings`,
			`(?i)suggestion`,
		),
	},
}

func compilePatterns(patterns ...string) []*regexp.Regexp {
	var compiled []*regexp.Regexp
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// Filter is the noise predicate configured with a call site's length bounds.
// The zero value uses the default bounds.
type Filter struct {
	MinLength int
	MaxLength int
}

// New returns a Filter with the given inclusive length bounds. Non-positive
// values fall back to the defaults.
func New(minLength, maxLength int) Filter {
	return Filter{MinLength: minLength, MaxLength: maxLength}
}

func (f Filter) bounds() (int, int) {
	lo, hi := f.MinLength, f.MaxLength
	if lo <= 0 {
		lo = DefaultMinLength
	}
	if hi <= 0 {
		hi = DefaultMaxLength
	}
	return lo, hi
}

// IsCandidate reports whether text should be submitted for classification.
func (f Filter) IsCandidate(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	lo, hi := f.bounds()
	n := utf8.RuneCountInString(text)
	if n < lo || n > hi {
		return false
	}
	return ChromeCategory(text) == ""
}

// IsCandidate applies the default bounds.
func IsCandidate(text string) bool {
	return Filter{}.IsCandidate(text)
}

// ChromeCategory returns the name of the first chrome category text matches,
// or "" when it matches none.
func ChromeCategory(text string) string {
	for _, group := range chromePatterns {
		for _, re := range group.patterns {
			if re.MatchString(text) {
				return group.category
			}
		}
	}
	return ""
}

var (
	leadingClock = regexp.MustCompile(`^\d{1,2}:\d{2}`)
	leadingDay   = regexp.MustCompile(`^(Today|Yesterday|\w+ \d+)`)
	hasWord      = regexp.MustCompile(`[a-zA-Z]{2,}`)
)

// LooksLikeMessage is a stricter predicate than IsCandidate for sweeps over
// whole pages, where most leaves are labels rather than messages.
func LooksLikeMessage(text string) bool {
	text = strings.TrimSpace(text)
	if ChromeCategory(text) != "" {
		return false
	}
	if leadingClock.MatchString(text) || leadingDay.MatchString(text) {
		return false
	}
	if len(strings.Fields(text)) == 1 && len(text) < 10 {
		return false
	}
	return hasWord.MatchString(text)
}
