// Package tui implements the Bubble Tea alert dashboard.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/sprite-ai/blinky/internal/diff"
	"github.com/sprite-ai/blinky/internal/model"
)

// MaxNotifications is how many notifications stay on screen. The oldest is
// evicted when a new one arrives.
const MaxNotifications = 5

type kind int

const (
	kindAlert kind = iota
	kindAnnotation
	kindOffline
	kindSafe
)

type notification struct {
	id          string
	kind        kind
	level       model.Level
	mood        model.Mood
	title       string
	findings    []string
	suggestions []string
	excerpts    []string
	path        string
	snippet     []diff.HighlightedLine
	sources     int
	at          time.Time
}

// Model is the top-level Bubble Tea model for the dashboard.
type Model struct {
	title        string
	dismissAfter time.Duration

	// newest first
	notes    []notification
	selected int

	online   bool
	lastErr  string
	alerts   int
	flagged  int
	highSeen int

	width  int
	height int

	showHelp bool
}

// New creates an empty dashboard. title is shown in the status bar, usually
// the relay address. dismissAfter is the lifetime of notices that carry no
// explicit display hint.
func New(title string, dismissAfter time.Duration) Model {
	if dismissAfter <= 0 {
		dismissAfter = model.DefaultDismissAfter
	}
	return Model{title: title, dismissAfter: dismissAfter, online: true}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case AlertMsg:
		m.online = true
		m.alerts++
		if msg.Alert.Level >= model.LevelHigh {
			m.highSeen++
		}
		return m.push(alertNotification(msg.Alert), msg.Hint)

	case AnnotationMsg:
		m.online = true
		m.flagged++
		n := annotationNotification(msg.Annotation, msg.Snippet)
		return m.push(n, model.HintFor(n.level, m.dismissAfter))

	case OfflineMsg:
		m.online = false
		if msg.Err != nil {
			m.lastErr = msg.Err.Error()
		}
		n := notification{
			id:    uuid.NewString(),
			kind:  kindOffline,
			title: "Classification service offline",
			at:    msg.At,
		}
		if msg.Err != nil {
			n.findings = []string{msg.Err.Error()}
		}
		return m.push(n, model.DisplayHint{AutoDismiss: true, After: m.dismissAfter})

	case SafeMsg:
		m.online = true
		n := notification{
			id:       uuid.NewString(),
			kind:     kindSafe,
			title:    "This message looks safe",
			excerpts: []string{msg.Fragment.Text},
			at:       msg.At,
		}
		return m.push(n, model.DisplayHint{AutoDismiss: true, After: m.dismissAfter})

	case dismissMsg:
		m.remove(msg.id)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, keys.Down):
			if m.selected < len(m.notes)-1 {
				m.selected++
			}

		case key.Matches(msg, keys.Up):
			if m.selected > 0 {
				m.selected--
			}

		case key.Matches(msg, keys.Dismiss):
			if len(m.notes) > 0 {
				m.remove(m.notes[m.selected].id)
			}

		case key.Matches(msg, keys.Clear):
			m.notes = nil
			m.selected = 0

		case key.Matches(msg, keys.Help):
			m.showHelp = !m.showHelp
		}
	}

	return m, nil
}

// push adds n as the newest notification, evicting the oldest past the cap,
// and schedules its dismissal when the hint asks for one.
func (m Model) push(n notification, hint model.DisplayHint) (tea.Model, tea.Cmd) {
	m.notes = append([]notification{n}, m.notes...)
	if len(m.notes) > MaxNotifications {
		m.notes = m.notes[:MaxNotifications]
	}
	m.selected = 0

	if !hint.AutoDismiss {
		return m, nil
	}
	id := n.id
	return m, tea.Tick(hint.After, func(time.Time) tea.Msg { return dismissMsg{id: id} })
}

func (m *Model) remove(id string) {
	for i, n := range m.notes {
		if n.id == id {
			m.notes = append(m.notes[:i:i], m.notes[i+1:]...)
			break
		}
	}
	if m.selected >= len(m.notes) {
		m.selected = max(0, len(m.notes)-1)
	}
}

func alertNotification(a model.CombinedAlert) notification {
	title := "Threat detected"
	if a.SourceCount > 1 {
		title = "Threats detected across messages"
	}
	return notification{
		id:          a.ID,
		kind:        kindAlert,
		level:       a.Level,
		mood:        a.Mood,
		title:       title,
		findings:    a.Findings,
		suggestions: a.Suggestions,
		excerpts:    a.Excerpts,
		sources:     a.SourceCount,
		at:          a.CreatedAt,
	}
}

func annotationNotification(an model.Annotation, snippet []diff.HighlightedLine) notification {
	n := notification{
		id:          an.ID,
		kind:        kindAnnotation,
		level:       an.Verdict.Level,
		mood:        an.Verdict.Mood,
		title:       "Flagged message",
		findings:    an.Verdict.Findings,
		suggestions: an.Verdict.Suggestions,
		excerpts:    []string{an.Fragment.Text},
		snippet:     snippet,
		sources:     1,
		at:          an.CreatedAt,
	}
	if an.Fragment.Source != nil {
		n.path = an.Fragment.Source.Path
	}
	return n
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	listWidth := m.listWidth()
	detailWidth := m.width - listWidth - 1

	list := m.renderList(listWidth, m.height-2)
	detail := m.renderDetail(detailWidth, m.height-2)

	main := lipgloss.JoinHorizontal(lipgloss.Top, list, " ", detail)

	return lipgloss.JoinVertical(lipgloss.Left, main, m.renderStatusBar())
}

func (m Model) listWidth() int {
	w := m.width / 3
	if w < 28 {
		w = 28
	}
	return w
}

// Run starts the dashboard and blocks until the user quits. ready is called
// with a Sink bound to the running program before the UI takes over.
func Run(m Model, ready func(*Sink)) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	if ready != nil {
		ready(NewSink(p))
	}
	_, err := p.Run()
	return err
}
