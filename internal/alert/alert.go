// Package alert defines the outputs of the monitor and a handful of adapters
// that deliver them.
package alert

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sprite-ai/blinky/internal/model"
)

// Sink receives combined alerts and offline notices. Calls are serialized by
// the aggregator, but a Sink shared between monitors must be safe for
// concurrent use.
type Sink interface {
	Alert(model.CombinedAlert, model.DisplayHint)
	Offline(error)
}

// Annotator receives the immediate per-fragment signal used to mark the
// originating element in place.
type Annotator interface {
	Annotate(model.Annotation)
}

// SafeNotifier is implemented by sinks that want the "looks safe" notice for
// manual scans. Automatic scans never produce it.
type SafeNotifier interface {
	Safe(model.Fragment)
}

// Event kinds.
const (
	KindAlert    = "alert"
	KindAnnotate = "annotate"
	KindOffline  = "offline"
	KindSafe     = "safe"
)

// Event is the serialized form shared by the file, webhook and websocket
// adapters.
type Event struct {
	Kind           string    `json:"kind"`
	ID             string    `json:"id,omitempty"`
	Level          string    `json:"level,omitempty"`
	Mood           string    `json:"mood,omitempty"`
	Score          int       `json:"score,omitempty"`
	Findings       []string  `json:"findings,omitempty"`
	Suggestions    []string  `json:"suggestions,omitempty"`
	SourceCount    int       `json:"source_count,omitempty"`
	Excerpts       []string  `json:"excerpts,omitempty"`
	Text           string    `json:"text,omitempty"`
	Path           string    `json:"path,omitempty"`
	Context        string    `json:"context,omitempty"`
	AutoDismiss    bool      `json:"auto_dismiss,omitempty"`
	DismissAfterMs int64     `json:"dismiss_after_ms,omitempty"`
	Error          string    `json:"error,omitempty"`
	Time           time.Time `json:"time"`
}

// AlertEvent serializes a combined alert and its display hint.
func AlertEvent(a model.CombinedAlert, h model.DisplayHint) Event {
	return Event{
		Kind:           KindAlert,
		ID:             a.ID,
		Level:          a.Level.String(),
		Mood:           string(a.Mood),
		Findings:       a.Findings,
		Suggestions:    a.Suggestions,
		SourceCount:    a.SourceCount,
		Excerpts:       a.Excerpts,
		AutoDismiss:    h.AutoDismiss,
		DismissAfterMs: h.After.Milliseconds(),
		Time:           a.CreatedAt,
	}
}

// AnnotationEvent serializes an inline annotation.
func AnnotationEvent(an model.Annotation) Event {
	ev := Event{
		Kind:     KindAnnotate,
		ID:       an.ID,
		Level:    an.Verdict.Level.String(),
		Mood:     string(an.Verdict.Mood),
		Score:    an.Verdict.Score,
		Findings: an.Verdict.Findings,
		Text:     an.Fragment.Text,
		Context:  string(an.Fragment.Context),
		Time:     an.CreatedAt,
	}
	if an.Fragment.Source != nil {
		ev.Path = an.Fragment.Source.Path
	}
	return ev
}

// OfflineEvent serializes an offline notice.
func OfflineEvent(err error, at time.Time) Event {
	ev := Event{Kind: KindOffline, Time: at}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// SafeEvent serializes a manual-scan "looks safe" notice.
func SafeEvent(f model.Fragment, at time.Time) Event {
	return Event{Kind: KindSafe, Text: f.Text, Context: string(f.Context), Time: at}
}

// Multi fans every call out to each member in order. Annotate and Safe are
// forwarded only to members implementing the optional interfaces.
type Multi []Sink

func (m Multi) Alert(a model.CombinedAlert, h model.DisplayHint) {
	for _, s := range m {
		s.Alert(a, h)
	}
}

func (m Multi) Offline(err error) {
	for _, s := range m {
		s.Offline(err)
	}
}

func (m Multi) Annotate(an model.Annotation) {
	for _, s := range m {
		if a, ok := s.(Annotator); ok {
			a.Annotate(an)
		}
	}
}

func (m Multi) Safe(f model.Fragment) {
	for _, s := range m {
		if n, ok := s.(SafeNotifier); ok {
			n.Safe(f)
		}
	}
}

// Close closes every member that is an io.Closer and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps everything it receives in memory. The scan command uses it
// to build its report.
type Recorder struct {
	mu          sync.Mutex
	alerts      []model.CombinedAlert
	hints       []model.DisplayHint
	annotations []model.Annotation
	offline     []error
	safe        []model.Fragment
}

func (r *Recorder) Alert(a model.CombinedAlert, h model.DisplayHint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	r.hints = append(r.hints, h)
}

func (r *Recorder) Offline(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offline = append(r.offline, err)
}

func (r *Recorder) Annotate(an model.Annotation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.annotations = append(r.annotations, an)
}

func (r *Recorder) Safe(f model.Fragment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.safe = append(r.safe, f)
}

func (r *Recorder) Alerts() []model.CombinedAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.CombinedAlert(nil), r.alerts...)
}

func (r *Recorder) Hints() []model.DisplayHint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.DisplayHint(nil), r.hints...)
}

func (r *Recorder) Annotations() []model.Annotation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Annotation(nil), r.annotations...)
}

func (r *Recorder) OfflineErrors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.offline...)
}

func (r *Recorder) SafeNotices() []model.Fragment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Fragment(nil), r.safe...)
}
