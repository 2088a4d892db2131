// Package safety is the reference classifier behind the analysis service. It
// scores text against pattern batteries per threat category and, when
// configured, an external toxicity model.
package safety

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/sprite-ai/blinky/internal/model"
)

// Category names a detector.
type Category string

const (
	Bullying      Category = "bullying"
	Grooming      Category = "grooming"
	Inappropriate Category = "inappropriate"
	Scam          Category = "scam"
	Toxicity      Category = "toxicity"
)

// Limits on the response lists.
const (
	MaxFindings    = 5
	MaxSuggestions = 3
)

// Score is one detector's contribution.
type Score struct {
	Category Category
	Value    int // 0..100
	Findings []string
}

// Detector scores text for one category.
type Detector func(text string) Score

// Detectors are the pattern detectors in report order, with the weight (in
// percent) each category carries in the total.
var Detectors = []struct {
	Category Category
	Detect   Detector
	Weight   int
}{
	{Bullying, DetectBullying, 100},
	{Grooming, DetectGrooming, 150},
	{Inappropriate, DetectInappropriate, 120},
	{Scam, DetectScam, 100},
}

// suggestionSets are tried in order; the first category scoring above
// suggestionFloor supplies the advice.
var suggestionSets = []struct {
	category Category
	advice   []string
}{
	{Grooming, []string{"Tell a trusted adult about this message", "Don't share personal information", "Block this person"}},
	{Bullying, []string{"Don't respond to mean messages", "Tell a teacher or parent", "Block this person"}},
	{Inappropriate, []string{"This message isn't appropriate", "Tell a trusted adult", "Don't continue this conversation"}},
	{Scam, []string{"Don't click any links", "Don't share passwords or personal info", "Ask an adult before responding"}},
}

const suggestionFloor = 30

// ToxicityScorer is an optional model-backed detector.
type ToxicityScorer interface {
	Toxicity(ctx context.Context, text string) (score int, findings []string, err error)
}

// Result is the full analysis of one text.
type Result struct {
	IsSafe      bool
	Level       model.Level
	Score       int
	Mood        model.Mood
	Findings    []string
	Suggestions []string
	Context     string
	Scores      map[Category]int
}

// ThreatLabel is the wire threat_level: SAFE below the lowest band.
func (r Result) ThreatLabel() string {
	if r.Level == model.LevelNone {
		return "SAFE"
	}
	return r.Level.String()
}

// Analyzer runs the detectors. The zero value uses the pattern detectors only.
type Analyzer struct {
	Toxicity ToxicityScorer
	Skip     []Category
}

// New creates an Analyzer with an optional toxicity scorer.
func New(tox ToxicityScorer) *Analyzer {
	return &Analyzer{Toxicity: tox}
}

// Analyze scores text. The total is the highest weighted category score,
// clamped to 100.
func (a *Analyzer) Analyze(ctx context.Context, text, siteContext string) Result {
	if siteContext == "" {
		siteContext = string(model.ContextGeneral)
	}
	skip := lo.SliceToMap(a.Skip, func(c Category) (Category, bool) { return c, true })

	scores := make(map[Category]int)
	var findings []string
	total := 0
	for _, d := range Detectors {
		if skip[d.Category] {
			continue
		}
		s := d.Detect(text)
		scores[d.Category] = s.Value
		findings = append(findings, s.Findings...)
		total = max(total, weighted(s.Value, d.Weight))
	}

	if a.Toxicity != nil && !skip[Toxicity] {
		v, f, err := a.Toxicity.Toxicity(ctx, text)
		if err != nil {
			log.Warn().Err(err).Msg("toxicity scorer failed; using patterns only")
		} else {
			v = clamp(v)
			scores[Toxicity] = v
			findings = append(findings, f...)
			total = max(total, v)
		}
	}

	score := clamp(total)
	level := model.LevelForScore(score)
	return Result{
		IsSafe:      level == model.LevelNone,
		Level:       level,
		Score:       score,
		Mood:        model.MoodForLevel(level),
		Findings:    capList(findings, MaxFindings),
		Suggestions: capList(suggestionsFor(scores), MaxSuggestions),
		Context:     siteContext,
		Scores:      scores,
	}
}

// weighted applies a percent weight and drops the fraction. For any whole
// cutoff n, weighted(v, w) >= n exactly when v*w/100 >= n, so band and
// threshold decisions match the unrounded score.
func weighted(value, weight int) int {
	return value * weight / 100
}

func suggestionsFor(scores map[Category]int) []string {
	for _, set := range suggestionSets {
		if scores[set.category] > suggestionFloor {
			return set.advice
		}
	}
	return nil
}

// Dominant returns the categories that scored, highest first.
func (r Result) Dominant() []Category {
	cats := lo.Filter(lo.Keys(r.Scores), func(c Category, _ int) bool { return r.Scores[c] > 0 })
	sort.Slice(cats, func(i, j int) bool {
		if r.Scores[cats[i]] != r.Scores[cats[j]] {
			return r.Scores[cats[i]] > r.Scores[cats[j]]
		}
		return cats[i] < cats[j]
	})
	return cats
}

// DetectBullying: +30 per matching pattern, +15 for shouting, +10 for
// excessive punctuation.
func DetectBullying(text string) Score {
	s := matchPatterns(Bullying, bullyingPatterns, strings.ToLower(text), 30, "Bullying language detected: %s")
	if shouting.MatchString(text) {
		s.Findings = append(s.Findings, "Aggressive tone detected")
		s.Value += 15
	}
	if strings.Count(text, "!") > 2 || strings.Count(text, "?") > 2 {
		s.Findings = append(s.Findings, "Aggressive punctuation")
		s.Value += 10
	}
	s.Value = clamp(s.Value)
	return s
}

// DetectGrooming: +50 per matching pattern, +25 for personal questions.
func DetectGrooming(text string) Score {
	lower := strings.ToLower(text)
	s := matchPatterns(Grooming, groomingPatterns, lower, 50, "Grooming indicator: %s")
	if personalRequest.MatchString(lower) {
		s.Findings = append(s.Findings, "Personal information request")
		s.Value += 25
	}
	s.Value = clamp(s.Value)
	return s
}

// DetectInappropriate: +40 per matching pattern.
func DetectInappropriate(text string) Score {
	s := matchPatterns(Inappropriate, inappropriatePatterns, strings.ToLower(text), 40, "Inappropriate content: %s")
	s.Value = clamp(s.Value)
	return s
}

// DetectScam: +35 per matching pattern.
func DetectScam(text string) Score {
	s := matchPatterns(Scam, scamPatterns, strings.ToLower(text), 35, "Potential scam: %s")
	s.Value = clamp(s.Value)
	return s
}

func matchPatterns(cat Category, patterns []*regexp.Regexp, lower string, weight int, format string) Score {
	s := Score{Category: cat}
	for _, re := range patterns {
		m := re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		phrase := m[0]
		if len(m) > 1 {
			phrase = m[1]
		}
		s.Findings = append(s.Findings, fmt.Sprintf(format, phrase))
		s.Value += weight
	}
	return s
}

func capList(items []string, limit int) []string {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

func clamp(v int) int {
	return max(0, min(100, v))
}
