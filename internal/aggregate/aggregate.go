// Package aggregate buffers qualifying verdicts over a debounce window and
// merges each burst into a single combined alert.
package aggregate

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/sprite-ai/blinky/internal/clock"
	"github.com/sprite-ai/blinky/internal/model"
)

// Defaults match the reference behavior.
const (
	DefaultThreshold      = 20
	DefaultWindow         = 2000 * time.Millisecond
	DefaultMaxFindings    = 5
	DefaultMaxSuggestions = 3
)

// State is the observable aggregator state.
type State int

const (
	Idle State = iota
	Buffering
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Buffering:
		return "buffering"
	default:
		return "unknown"
	}
}

// Config controls thresholds and caps. Zero fields take the defaults.
type Config struct {
	Threshold      int
	Window         time.Duration
	MaxFindings    int
	MaxSuggestions int
	DismissAfter   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MaxFindings <= 0 {
		c.MaxFindings = DefaultMaxFindings
	}
	if c.MaxSuggestions <= 0 {
		c.MaxSuggestions = DefaultMaxSuggestions
	}
	if c.DismissAfter <= 0 {
		c.DismissAfter = model.DefaultDismissAfter
	}
	return c
}

// Ports are the two independent outputs. Inline receives one annotation per
// qualifying verdict that has a source location, at arrival time. Combined
// receives one merged alert per flush.
type Ports struct {
	Inline   func(model.Annotation)
	Combined func(model.CombinedAlert, model.DisplayHint)
}

// Aggregator owns the pending-threat buffer and the flush timer. It is safe
// for concurrent use.
type Aggregator struct {
	cfg   Config
	clock clock.Clock
	ports Ports

	emitMu sync.Mutex // serializes combined emissions

	mu     sync.Mutex
	buffer []model.PendingThreat
	timer  clock.Timer
	gen    uint64
	closed bool
}

// New creates an idle Aggregator. A nil clock uses the wall clock.
func New(cfg Config, clk clock.Clock, ports Ports) *Aggregator {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Aggregator{cfg: cfg.withDefaults(), clock: clk, ports: ports}
}

// Threshold returns the minimum qualifying score.
func (a *Aggregator) Threshold() int { return a.cfg.Threshold }

// Qualifies reports whether v meets the dispatch threshold (inclusive).
func (a *Aggregator) Qualifies(v model.Verdict) bool {
	return v.Score >= a.cfg.Threshold
}

// Submit offers a verdict in arrival order. Qualifying verdicts are buffered
// and restart the debounce timer; the return value reports whether v
// qualified.
func (a *Aggregator) Submit(v model.Verdict, f model.Fragment) bool {
	if !a.Qualifies(v) {
		return false
	}
	now := a.clock.Now()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		log.Warn().Int("score", v.Score).Msg("verdict arrived after aggregator closed; flushing alone")
		a.emit(combine([]model.PendingThreat{{Verdict: v, Fragment: f, InsertedAt: now}}, a.cfg, now), v.Level)
		return true
	}
	a.buffer = append(a.buffer, model.PendingThreat{Verdict: v, Fragment: f, InsertedAt: now})
	a.restartLocked()
	n := len(a.buffer)
	a.mu.Unlock()

	log.Debug().Int("score", v.Score).Str("threat_level", v.Level.String()).Int("pending", n).Msg("threat buffered")

	if f.Source != nil && a.ports.Inline != nil {
		a.ports.Inline(model.Annotation{
			ID:        uuid.NewString(),
			Fragment:  f,
			Verdict:   v,
			CreatedAt: now,
		})
	}
	return true
}

func (a *Aggregator) restartLocked() {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.gen++
	gen := a.gen
	a.timer = a.clock.AfterFunc(a.cfg.Window, func() { a.fire(gen) })
}

func (a *Aggregator) fire(gen uint64) {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()

	a.mu.Lock()
	if gen != a.gen || len(a.buffer) == 0 {
		a.mu.Unlock()
		return
	}
	alert, level := a.drainLocked()
	a.mu.Unlock()

	a.emitLocked(alert, level)
}

// Flush drains the buffer immediately. It reports false when idle.
func (a *Aggregator) Flush() (model.CombinedAlert, bool) {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()

	a.mu.Lock()
	if len(a.buffer) == 0 {
		a.mu.Unlock()
		return model.CombinedAlert{}, false
	}
	alert, level := a.drainLocked()
	a.mu.Unlock()

	a.emitLocked(alert, level)
	return alert, true
}

// drainLocked merges and empties the whole buffer and cancels the timer.
func (a *Aggregator) drainLocked() (model.CombinedAlert, model.Level) {
	alert := combine(a.buffer, a.cfg, a.clock.Now())
	a.buffer = nil
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
	return alert, alert.Level
}

func (a *Aggregator) emit(alert model.CombinedAlert, level model.Level) {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()
	a.emitLocked(alert, level)
}

func (a *Aggregator) emitLocked(alert model.CombinedAlert, level model.Level) {
	log.Info().
		Str("alert_id", alert.ID).
		Str("threat_level", level.String()).
		Int("sources", alert.SourceCount).
		Int("findings", len(alert.Findings)).
		Msg("combined alert flushed")
	if a.ports.Combined != nil {
		a.ports.Combined(alert, model.HintFor(level, a.cfg.DismissAfter))
	}
}

// State returns Idle or Buffering.
func (a *Aggregator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.buffer) == 0 {
		return Idle
	}
	return Buffering
}

// Pending returns a copy of the buffered threats in arrival order.
func (a *Aggregator) Pending() []model.PendingThreat {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.PendingThreat(nil), a.buffer...)
}

// Clear discards the buffer without emitting and returns how many threats
// were dropped.
func (a *Aggregator) Clear() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.buffer)
	a.buffer = nil
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
	if n > 0 {
		log.Warn().Int("dropped", n).Msg("pending threats cleared without flush")
	}
	return n
}

// Close flushes whatever is buffered and stops the timer. Verdicts that
// arrive afterwards are emitted on their own.
func (a *Aggregator) Close() {
	a.Flush()
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
}

// combine merges buffered threats. Level and mood come from the threat with
// the highest score; the earliest arrival wins ties.
func combine(threats []model.PendingThreat, cfg Config, now time.Time) model.CombinedAlert {
	top := threats[0]
	for _, t := range threats[1:] {
		if t.Verdict.Score > top.Verdict.Score {
			top = t
		}
	}

	findings := lo.FlatMap(threats, func(t model.PendingThreat, _ int) []string { return t.Verdict.Findings })
	suggestions := lo.FlatMap(threats, func(t model.PendingThreat, _ int) []string { return t.Verdict.Suggestions })

	return model.CombinedAlert{
		ID:          uuid.NewString(),
		Level:       top.Verdict.Level,
		Mood:        top.Verdict.Mood,
		Findings:    dedupCap(findings, cfg.MaxFindings),
		Suggestions: dedupCap(suggestions, cfg.MaxSuggestions),
		SourceCount: len(threats),
		Excerpts:    lo.Map(threats, func(t model.PendingThreat, _ int) string { return t.Fragment.Text }),
		CreatedAt:   now,
	}
}

func dedupCap(items []string, limit int) []string {
	items = lo.Map(items, func(s string, _ int) string { return strings.TrimSpace(s) })
	out := lo.Uniq(lo.Compact(items))
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
