package alert

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sprite-ai/blinky/internal/model"
)

func pathRef(path string) *model.SourceRef { return &model.SourceRef{Path: path} }

// plainSink implements only Sink.
type plainSink struct{ alerts, offline int }

func (p *plainSink) Alert(model.CombinedAlert, model.DisplayHint) { p.alerts++ }
func (p *plainSink) Offline(error)                                { p.offline++ }

func sampleAlert() model.CombinedAlert {
	return model.CombinedAlert{
		ID:          "a-1",
		Level:       model.LevelHigh,
		Mood:        model.MoodSobbing,
		Findings:    []string{"Bullying language detected: stupid"},
		Suggestions: []string{"Block this person"},
		SourceCount: 2,
		Excerpts:    []string{"you're so stupid", "loser"},
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMultiForwardsOptionalInterfaces(t *testing.T) {
	plain := &plainSink{}
	rec := &Recorder{}
	m := Multi{plain, rec}

	m.Alert(sampleAlert(), model.DisplayHint{})
	m.Offline(errors.New("down"))
	m.Annotate(model.Annotation{ID: "x"})
	m.Safe(model.Fragment{Text: "hi"})

	if plain.alerts != 1 || plain.offline != 1 {
		t.Errorf("plain sink got %d alerts, %d offline", plain.alerts, plain.offline)
	}
	if len(rec.Alerts()) != 1 || len(rec.OfflineErrors()) != 1 {
		t.Error("recorder missed an alert or offline notice")
	}
	if len(rec.Annotations()) != 1 || len(rec.SafeNotices()) != 1 {
		t.Error("optional interfaces were not forwarded")
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestAnnotationEventPath(t *testing.T) {
	ev := AnnotationEvent(model.Annotation{
		ID:       "n-1",
		Fragment: model.Fragment{Text: "loser", Source: pathRef("body > p[2]"), Context: model.ContextDiscord},
		Verdict:  model.Verdict{Score: 55, Level: model.LevelMedium},
	})
	if ev.Kind != KindAnnotate || ev.Path != "body > p[2]" || ev.Level != "MEDIUM" || ev.Context != "discord" {
		t.Errorf("unexpected event %+v", ev)
	}
	if got := AnnotationEvent(model.Annotation{}).Path; got != "" {
		t.Errorf("expected empty path without source, got %q", got)
	}
}

func TestAlertEventHint(t *testing.T) {
	ev := AlertEvent(sampleAlert(), model.HintFor(model.LevelLow, 0))
	if !ev.AutoDismiss || ev.DismissAfterMs != 15000 {
		t.Errorf("unexpected hint fields %+v", ev)
	}
}

func TestFileSinkWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "alerts.jsonl")
	s, err := NewFileSink(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Alert(sampleAlert(), model.DisplayHint{})
	s.Offline(errors.New("connection refused"))
	s.Annotate(model.Annotation{ID: "n-1", Fragment: model.Fragment{Text: "loser"}})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(Event{Kind: KindAlert}); err == nil {
		t.Error("expected write after close to fail")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var kinds []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		kinds = append(kinds, ev.Kind)
		if ev.Kind == KindOffline && ev.Error != "connection refused" {
			t.Errorf("offline error = %q", ev.Error)
		}
	}
	if strings.Join(kinds, ",") != "alert,offline,annotate" {
		t.Errorf("kinds = %v", kinds)
	}
}

func TestNewFileSinkRejectsEmptyPath(t *testing.T) {
	if _, err := NewFileSink(""); err == nil {
		t.Error("expected error")
	}
}

func TestWebhookSinkRetries(t *testing.T) {
	var calls atomic.Int32
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "secret" {
			t.Errorf("missing header")
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s, err := NewWebhookSink(srv.URL, map[string]string{"X-Token": "secret"}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	s.backoffs = []time.Duration{time.Millisecond}

	if err := s.Deliver(context.Background(), AlertEvent(sampleAlert(), model.DisplayHint{})); err != nil {
		t.Fatalf("Deliver() = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
	if got.ID != "a-1" || got.SourceCount != 2 {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestWebhookSinkGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, _ := NewWebhookSink(srv.URL, nil, time.Second)
	s.backoffs = []time.Duration{time.Millisecond, time.Millisecond}
	err := s.Deliver(context.Background(), OfflineEvent(nil, time.Now()))
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Errorf("expected status error, got %v", err)
	}

	if _, err := NewWebhookSink("", nil, 0); err == nil {
		t.Error("expected error for empty url")
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(zerolog.New(&buf))

	s.Alert(sampleAlert(), model.DisplayHint{})
	s.Offline(errors.New("timeout"))

	out := buf.String()
	if !strings.Contains(out, `"level":"error"`) || !strings.Contains(out, `"alert_id":"a-1"`) {
		t.Errorf("HIGH alert not logged at error level: %s", out)
	}
	if !strings.Contains(out, "classification service offline") {
		t.Errorf("offline notice missing: %s", out)
	}
}
