package tui

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sprite-ai/blinky/internal/dom"
	"github.com/sprite-ai/blinky/internal/model"
)

func setupModel(t *testing.T) Model {
	t.Helper()
	m := New("ws://127.0.0.1:6143/ws", 0)
	newM, _ := m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	return newM.(Model)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	newM, cmd := m.Update(msg)
	return newM.(Model), cmd
}

func keyPress(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func testAlert(id string, level model.Level) AlertMsg {
	return AlertMsg{
		Alert: model.CombinedAlert{
			ID:          id,
			Level:       level,
			Mood:        model.MoodForLevel(level),
			Findings:    []string{"Potential bullying detected: \"stupid\""},
			Suggestions: []string{"Don't respond to mean messages"},
			SourceCount: 2,
			Excerpts:    []string{"you're so stupid", "nobody likes you"},
			CreatedAt:   time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
		},
		Hint: model.HintFor(level, 0),
	}
}

func TestModelInit(t *testing.T) {
	m := setupModel(t)

	if !m.online {
		t.Error("expected dashboard to start online")
	}
	if len(m.notes) != 0 {
		t.Errorf("expected no notifications, got %d", len(m.notes))
	}
	if m.dismissAfter != model.DefaultDismissAfter {
		t.Errorf("dismissAfter = %v, want %v", m.dismissAfter, model.DefaultDismissAfter)
	}
	if !strings.Contains(m.View(), "All quiet") {
		t.Error("expected empty view to say all quiet")
	}
}

func TestAlertDismissSchedule(t *testing.T) {
	tests := []struct {
		level    model.Level
		wantTick bool
	}{
		{model.LevelHigh, false},
		{model.LevelMedium, true},
		{model.LevelLow, true},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			m := setupModel(t)
			m, cmd := update(t, m, testAlert("a1", tt.level))
			if (cmd != nil) != tt.wantTick {
				t.Errorf("dismiss scheduled = %v, want %v", cmd != nil, tt.wantTick)
			}
			if len(m.notes) != 1 || m.notes[0].id != "a1" {
				t.Fatalf("notes = %+v", m.notes)
			}
			if m.alerts != 1 {
				t.Errorf("alerts = %d, want 1", m.alerts)
			}
		})
	}
}

func TestDismissMessage(t *testing.T) {
	m := setupModel(t)
	m, _ = update(t, m, testAlert("a1", model.LevelLow))
	m, _ = update(t, m, testAlert("a2", model.LevelMedium))

	m, _ = update(t, m, dismissMsg{id: "a1"})
	if len(m.notes) != 1 || m.notes[0].id != "a2" {
		t.Fatalf("expected only a2 left, got %+v", m.notes)
	}

	// Already gone: no-op.
	m, _ = update(t, m, dismissMsg{id: "a1"})
	if len(m.notes) != 1 {
		t.Errorf("expected 1 note, got %d", len(m.notes))
	}
}

func TestOldestEvicted(t *testing.T) {
	m := setupModel(t)
	for i := 0; i < MaxNotifications+2; i++ {
		m, _ = update(t, m, testAlert(fmt.Sprintf("a%d", i), model.LevelHigh))
	}

	if len(m.notes) != MaxNotifications {
		t.Fatalf("expected %d notes, got %d", MaxNotifications, len(m.notes))
	}
	if m.notes[0].id != "a6" {
		t.Errorf("newest = %s, want a6", m.notes[0].id)
	}
	if last := m.notes[len(m.notes)-1].id; last != "a2" {
		t.Errorf("oldest kept = %s, want a2", last)
	}
	if m.alerts != MaxNotifications+2 || m.highSeen != MaxNotifications+2 {
		t.Errorf("counters = %d/%d", m.alerts, m.highSeen)
	}
}

func TestOfflineStatus(t *testing.T) {
	m := setupModel(t)

	m, cmd := update(t, m, OfflineMsg{Err: errors.New("dial tcp: connection refused"), At: time.Now()})
	if m.online {
		t.Error("expected offline after OfflineMsg")
	}
	if cmd == nil {
		t.Error("expected offline notice to auto-dismiss")
	}
	if m.notes[0].kind != kindOffline {
		t.Errorf("kind = %v, want offline", m.notes[0].kind)
	}
	if !strings.Contains(m.View(), "offline") {
		t.Error("expected status bar to show offline")
	}

	m, _ = update(t, m, testAlert("a1", model.LevelHigh))
	if !m.online {
		t.Error("expected online again after an alert")
	}
}

func TestAnnotationDetail(t *testing.T) {
	body := dom.NewElement("body", nil)
	p := dom.NewElement("p", map[string]string{"class": "message"}).Append(dom.NewText("you're so stupid"))
	body.Append(p)

	var got []tea.Msg
	sink := SinkFunc(func(msg tea.Msg) { got = append(got, msg) })
	sink.Annotate(model.Annotation{
		ID:       "an1",
		Fragment: model.Fragment{Text: "you're so stupid", Source: p.Locate()},
		Verdict: model.Verdict{
			Score:    30,
			Level:    model.LevelLow,
			Mood:     model.MoodNeutral,
			Findings: []string{"Potential bullying detected: \"stupid\""},
		},
	})
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	msg, ok := got[0].(AnnotationMsg)
	if !ok {
		t.Fatalf("got %T, want AnnotationMsg", got[0])
	}
	if len(msg.Snippet) == 0 {
		t.Fatal("expected highlighted snippet for a dom source")
	}

	m := setupModel(t)
	m, cmd := update(t, m, msg)
	if cmd == nil {
		t.Error("expected LOW annotation to auto-dismiss")
	}
	n := m.notes[0]
	if n.path != p.Path() {
		t.Errorf("path = %q, want %q", n.path, p.Path())
	}
	if m.flagged != 1 {
		t.Errorf("flagged = %d, want 1", m.flagged)
	}

	view := m.View()
	for _, want := range []string{"Flagged message", "Element", "stupid"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestSinkForwards(t *testing.T) {
	var got []tea.Msg
	sink := SinkFunc(func(msg tea.Msg) { got = append(got, msg) })

	a := testAlert("a1", model.LevelHigh)
	sink.Alert(a.Alert, a.Hint)
	sink.Offline(errors.New("boom"))
	sink.Safe(model.Fragment{Text: "hello there", Context: model.ContextManual})
	sink.Annotate(model.Annotation{ID: "x", Fragment: model.Fragment{Text: "no source"}})

	if len(got) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(got))
	}
	if _, ok := got[0].(AlertMsg); !ok {
		t.Errorf("got[0] = %T", got[0])
	}
	if _, ok := got[1].(OfflineMsg); !ok {
		t.Errorf("got[1] = %T", got[1])
	}
	if s, ok := got[2].(SafeMsg); !ok || s.Fragment.Text != "hello there" {
		t.Errorf("got[2] = %#v", got[2])
	}
	if an, ok := got[3].(AnnotationMsg); !ok || an.Snippet != nil {
		t.Errorf("got[3] = %#v", got[3])
	}
}

func TestNavigationAndDismissKey(t *testing.T) {
	m := setupModel(t)
	m, _ = update(t, m, testAlert("a1", model.LevelHigh))
	m, _ = update(t, m, testAlert("a2", model.LevelHigh))
	m, _ = update(t, m, testAlert("a3", model.LevelHigh))

	m, _ = update(t, m, keyPress('j'))
	if m.selected != 1 {
		t.Errorf("selected = %d, want 1", m.selected)
	}

	m, _ = update(t, m, keyPress('d'))
	if len(m.notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(m.notes))
	}
	for _, n := range m.notes {
		if n.id == "a2" {
			t.Error("a2 should have been dismissed")
		}
	}

	m, _ = update(t, m, keyPress('j'))
	m, _ = update(t, m, keyPress('j'))
	if m.selected != 1 {
		t.Errorf("selected = %d, want 1 at end", m.selected)
	}

	m, _ = update(t, m, keyPress('k'))
	m, _ = update(t, m, keyPress('k'))
	if m.selected != 0 {
		t.Errorf("selected = %d, want 0 at top", m.selected)
	}

	m, _ = update(t, m, keyPress('c'))
	if len(m.notes) != 0 {
		t.Errorf("expected clear to empty the list, got %d", len(m.notes))
	}
}

func TestViewRenders(t *testing.T) {
	m := setupModel(t)
	m, _ = update(t, m, testAlert("a1", model.LevelHigh))

	view := m.View()
	for _, want := range []string{"HIGH", "Threats detected across messages", "nobody likes you", "Don't respond", "ws://127.0.0.1:6143/ws"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestHelpToggle(t *testing.T) {
	m := setupModel(t)

	m, _ = update(t, m, keyPress('?'))
	if !m.showHelp {
		t.Error("expected help to be shown")
	}
	if !strings.Contains(m.View(), "Keyboard Shortcuts") {
		t.Error("expected help view to contain shortcuts")
	}
}

func TestQuit(t *testing.T) {
	m := setupModel(t)
	_, cmd := update(t, m, keyPress('q'))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}
