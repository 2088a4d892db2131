package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sprite-ai/blinky/internal/diff"
	"github.com/sprite-ai/blinky/internal/model"
)

// AlertMsg carries a combined alert into the dashboard.
type AlertMsg struct {
	Alert model.CombinedAlert
	Hint  model.DisplayHint
}

// AnnotationMsg carries an inline annotation. Snippet holds the highlighted
// markup of the flagged element when it is known.
type AnnotationMsg struct {
	Annotation model.Annotation
	Snippet    []diff.HighlightedLine
}

// OfflineMsg reports that the classification service could not be reached.
type OfflineMsg struct {
	Err error
	At  time.Time
}

// SafeMsg is the "looks safe" notice for a manual scan.
type SafeMsg struct {
	Fragment model.Fragment
	At       time.Time
}

type dismissMsg struct{ id string }

// Sink forwards pipeline output to a running program. It satisfies
// alert.Sink, alert.Annotator and alert.SafeNotifier.
type Sink struct {
	send func(tea.Msg)
}

// NewSink returns a Sink that delivers to p.
func NewSink(p *tea.Program) *Sink {
	return &Sink{send: p.Send}
}

// SinkFunc returns a Sink that delivers messages to send.
func SinkFunc(send func(tea.Msg)) *Sink {
	return &Sink{send: send}
}

func (s *Sink) Alert(a model.CombinedAlert, h model.DisplayHint) {
	s.send(AlertMsg{Alert: a, Hint: h})
}

func (s *Sink) Offline(err error) {
	s.send(OfflineMsg{Err: err, At: time.Now()})
}

// Annotate highlights the markup captured with the fragment's source.
func (s *Sink) Annotate(an model.Annotation) {
	msg := AnnotationMsg{Annotation: an}
	if an.Fragment.Source != nil {
		msg.Snippet = diff.HighlightMarkup(an.Fragment.Source.Markup)
	}
	s.send(msg)
}

func (s *Sink) Safe(f model.Fragment) {
	s.send(SafeMsg{Fragment: f, At: time.Now()})
}
