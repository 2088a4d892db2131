// Package model defines the core data types shared across blinky.
package model

import (
	"slices"
	"strings"
	"time"
)

// Level is the severity band of a verdict or alert.
type Level int

const (
	LevelNone Level = iota
	LevelLow
	LevelMedium
	LevelHigh
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "NONE"
	case LevelLow:
		return "LOW"
	case LevelMedium:
		return "MEDIUM"
	case LevelHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a wire threat_level to a Level. Absent, "SAFE" and
// unrecognised values all map to LevelNone.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return LevelLow
	case "MEDIUM":
		return LevelMedium
	case "HIGH":
		return LevelHigh
	default:
		return LevelNone
	}
}

// LevelForScore returns the band a 0..100 score falls into.
func LevelForScore(score int) Level {
	switch {
	case score >= 70:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	case score >= 20:
		return LevelLow
	default:
		return LevelNone
	}
}

// Mood is the mascot expression attached to a verdict.
type Mood string

const (
	MoodHappy     Mood = "happy"
	MoodNeutral   Mood = "neutral"
	MoodSingleCry Mood = "single_cry"
	MoodSobbing   Mood = "sobbing"
	MoodWink      Mood = "wink"
)

// MoodForLevel is the expression the reference service pairs with each band.
func MoodForLevel(l Level) Mood {
	switch l {
	case LevelHigh:
		return MoodSobbing
	case LevelMedium:
		return MoodSingleCry
	case LevelLow:
		return MoodNeutral
	default:
		return MoodHappy
	}
}

// SiteContext labels the platform hosting the monitored document.
type SiteContext string

const (
	ContextDiscord   SiteContext = "discord"
	ContextInstagram SiteContext = "instagram"
	ContextFacebook  SiteContext = "facebook"
	ContextWhatsApp  SiteContext = "whatsapp"
	ContextYouTube   SiteContext = "youtube"
	ContextTikTok    SiteContext = "tiktok"
	ContextRoblox    SiteContext = "roblox"
	ContextGeneral   SiteContext = "general"
	ContextManual    SiteContext = "manual"
)

// DetectContext derives the site context from a page host name.
func DetectContext(host string) SiteContext {
	h := strings.ToLower(host)
	switch {
	case strings.Contains(h, "discord"):
		return ContextDiscord
	case strings.Contains(h, "instagram"):
		return ContextInstagram
	case strings.Contains(h, "facebook"), strings.Contains(h, "messenger"):
		return ContextFacebook
	case strings.Contains(h, "whatsapp"):
		return ContextWhatsApp
	case strings.Contains(h, "youtube"):
		return ContextYouTube
	case strings.Contains(h, "tiktok"):
		return ContextTikTok
	case strings.Contains(h, "roblox"):
		return ContextRoblox
	default:
		return ContextGeneral
	}
}

// SourceRef locates the element a fragment came from. It is captured when
// the fragment is extracted and holds plain values only, so sinks can read
// it on any goroutine while the tree keeps changing.
type SourceRef struct {
	Path   string            // e.g. "body > div#chat > p.message[2]"
	Attrs  map[string]string // element attributes at extraction time
	Markup string            // outer HTML of the element
}

// Attr returns the named attribute captured with the reference.
func (r *SourceRef) Attr(name string) string {
	if r == nil {
		return ""
	}
	return r.Attrs[name]
}

// Fragment is a unit of extracted text proposed for classification.
type Fragment struct {
	Text    string
	Source  *SourceRef // nil when the text has no concrete location
	Context SiteContext
}

// Verdict is the classification service's judgment on one fragment.
type Verdict struct {
	IsSafe      bool
	Score       int
	Level       Level
	Findings    []string
	Suggestions []string
	Mood        Mood
}

// NewVerdict builds a Verdict, clamping the score and copying the slices so
// the result does not alias caller memory.
func NewVerdict(safe bool, score int, level Level, findings, suggestions []string, mood Mood) Verdict {
	score = max(0, min(100, score))
	return Verdict{
		IsSafe:      safe,
		Score:       score,
		Level:       level,
		Findings:    slices.Clone(findings),
		Suggestions: slices.Clone(suggestions),
		Mood:        mood,
	}
}

// PendingThreat is a qualifying verdict waiting in the aggregator buffer.
type PendingThreat struct {
	Verdict    Verdict
	Fragment   Fragment
	InsertedAt time.Time
}

// CombinedAlert merges every threat buffered during one debounce window.
type CombinedAlert struct {
	ID          string
	Level       Level
	Mood        Mood
	Findings    []string
	Suggestions []string
	SourceCount int
	Excerpts    []string // text of each buffered fragment, arrival order
	CreatedAt   time.Time
}

// Annotation is the immediate, single-fragment signal for in-place marking.
type Annotation struct {
	ID        string
	Fragment  Fragment
	Verdict   Verdict
	CreatedAt time.Time
}

// DisplayHint tells a renderer how long to keep an alert on screen.
type DisplayHint struct {
	AutoDismiss bool
	After       time.Duration
}

// DefaultDismissAfter is the on-screen lifetime of non-HIGH alerts.
const DefaultDismissAfter = 15 * time.Second

// HintFor returns the display hint for an alert of the given level.
func HintFor(l Level, after time.Duration) DisplayHint {
	if l >= LevelHigh {
		return DisplayHint{}
	}
	if after <= 0 {
		after = DefaultDismissAfter
	}
	return DisplayHint{AutoDismiss: true, After: after}
}
