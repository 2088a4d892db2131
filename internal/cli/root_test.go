package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sprite-ai/blinky/internal/alert"
	"github.com/sprite-ai/blinky/internal/classify"
	"github.com/sprite-ai/blinky/internal/config"
	"github.com/sprite-ai/blinky/internal/diff"
	"github.com/sprite-ai/blinky/internal/dom"
	"github.com/sprite-ai/blinky/internal/model"
)

// scorer classifies by substring; anything unmatched is safe.
type scorer map[string]int

func (s scorer) Classify(ctx context.Context, f model.Fragment) (model.Verdict, error) {
	if strings.Contains(f.Text, "offline") {
		return model.Verdict{}, classify.ErrOffline
	}
	for sub, score := range s {
		if strings.Contains(f.Text, sub) {
			level := model.LevelForScore(score)
			return model.NewVerdict(score < 20, score, level, []string{"flagged: " + sub}, []string{"Tell a trusted adult"}, model.MoodForLevel(level)), nil
		}
	}
	return model.NewVerdict(true, 0, model.LevelNone, nil, nil, model.MoodHappy), nil
}

const testPage = `<html><body>
<div id="chat">
  <p class="message">hey how was school today</p>
  <p class="message">you're so stupid and ugly</p>
  <p class="message">what school do you go to? don't tell your parents</p>
</div>
<div id="blinky-sidebar"><p>you're so stupid and ugly</p></div>
</body></html>`

func testOptions() config.MonitorConfig {
	mc := config.Default().Monitor
	mc.Debounce = time.Hour
	return mc
}

func TestRootCommandHasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"serve", "watch", "scan", "check", "history", "health", "chat", "version"} {
		if !names[want] {
			t.Errorf("root command missing subcommand %q", want)
		}
	}
}

func TestVersionOutput(t *testing.T) {
	if version != "dev" {
		t.Errorf("expected default version %q, got %q", "dev", version)
	}
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	if !strings.HasPrefix(buf.String(), "blinky dev") {
		t.Errorf("version output = %q", buf.String())
	}
}

func TestScanHTMLDocument(t *testing.T) {
	doc, err := dom.ParseHTML(strings.NewReader(testPage), "https://discord.com/channels/1")
	if err != nil {
		t.Fatal(err)
	}
	c := scorer{"stupid": 30, "don't tell your parents": 75}

	report, err := scanDocument(context.Background(), doc, c, monitorOptions(testOptions(), 0), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if report.Context != model.ContextDiscord {
		t.Errorf("context = %s", report.Context)
	}
	if report.Messages != 3 {
		t.Errorf("messages = %d, want 3 (sidebar excluded)", report.Messages)
	}
	if len(report.Annotations) != 2 {
		t.Errorf("annotations = %d, want 2", len(report.Annotations))
	}
	if len(report.Alerts) != 1 {
		t.Fatalf("alerts = %d, want 1 combined alert", len(report.Alerts))
	}
	a := report.Alerts[0]
	if a.SourceCount != 2 || a.Level != model.LevelHigh {
		t.Errorf("alert = %+v", a)
	}
	if report.exitCode() != 2 {
		t.Errorf("exit code = %d, want 2", report.exitCode())
	}
}

func TestScanDiffTranscripts(t *testing.T) {
	raw := `diff --git a/chats/general.log b/chats/general.log
new file mode 100644
--- /dev/null
+++ b/chats/general.log
@@ -0,0 +1,3 @@
+sam: hey are you coming to practice
+kid_99: you're so stupid lol
+sam: ok see you there
`
	set, err := diff.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	doc := dom.NewDocument("file://transcripts")
	apply := func(d *dom.Document) (int, error) { return diff.Apply(set, d) }

	rec := &alert.Recorder{}
	report, err := scanDocument(context.Background(), doc, scorer{"stupid": 30}, monitorOptions(testOptions(), 0), alert.Multi{rec}, apply)
	if err != nil {
		t.Fatal(err)
	}
	if report.Messages != 3 {
		t.Errorf("messages = %d, want 3", report.Messages)
	}
	if len(report.Alerts) != 1 || report.Alerts[0].Level != model.LevelLow {
		t.Fatalf("alerts = %+v", report.Alerts)
	}
	if report.exitCode() != 1 {
		t.Errorf("exit code = %d, want 1", report.exitCode())
	}
	if len(rec.Alerts()) != 1 {
		t.Errorf("extra sink saw %d alerts, want 1", len(rec.Alerts()))
	}
	if report.Context != model.ContextGeneral {
		t.Errorf("context = %s", report.Context)
	}
}

func TestScanOffline(t *testing.T) {
	doc, err := dom.ParseHTML(strings.NewReader(`<body><p>the service is offline today</p></body>`), "")
	if err != nil {
		t.Fatal(err)
	}
	report, err := scanDocument(context.Background(), doc, scorer{}, monitorOptions(testOptions(), 0), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Offline) != 1 || !errors.Is(report.Offline[0], classify.ErrOffline) {
		t.Errorf("offline = %v", report.Offline)
	}
	if report.exitCode() != 0 {
		t.Errorf("exit code = %d, want 0", report.exitCode())
	}
}

func sampleReport() *scanReport {
	return &scanReport{
		Source:   "page.html",
		Context:  model.ContextDiscord,
		Messages: 3,
		Alerts: []model.CombinedAlert{{
			ID:          "a1",
			Level:       model.LevelMedium,
			Mood:        model.MoodSingleCry,
			Findings:    []string{"Potential bullying detected: \"stupid\""},
			Suggestions: []string{"Don't respond | block them"},
			SourceCount: 1,
			Excerpts:    []string{"you're so stupid"},
		}},
	}
}

func TestWriteReportFormats(t *testing.T) {
	tests := []struct {
		format string
		want   []string
	}{
		{"text", []string{"Scanned page.html", "MEDIUM", "you're so stupid", "- Potential bullying"}},
		{"markdown", []string{"## Blinky Scan Report", "| MEDIUM | 1 |", `Don't respond \| block them`}},
		{"json", []string{`"max_level": "MEDIUM"`, `"kind": "alert"`, `"annotations": []`}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := writeReport(&buf, tt.format, sampleReport()); err != nil {
				t.Fatal(err)
			}
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("%s output missing %q:\n%s", tt.format, want, buf.String())
				}
			}
		})
	}

	if err := writeReport(&bytes.Buffer{}, "html", sampleReport()); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestCleanReport(t *testing.T) {
	r := &scanReport{Source: "page.html", Messages: 2}
	var buf bytes.Buffer
	if err := writeReport(&buf, "text", r); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No threats found.") {
		t.Errorf("output = %q", buf.String())
	}
	if r.exitCode() != 0 || r.MaxLevel() != model.LevelNone {
		t.Errorf("clean report: exit %d, level %s", r.exitCode(), r.MaxLevel())
	}
}

func TestWriteVerdict(t *testing.T) {
	rec := &alert.Recorder{}
	rec.Safe(model.Fragment{Text: "hi", Context: model.ContextManual})

	var buf bytes.Buffer
	if err := writeVerdict(&buf, model.Verdict{IsSafe: true, Mood: model.MoodHappy}, rec, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "looks safe") {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	v := model.NewVerdict(false, 75, model.LevelHigh, []string{"Potential grooming detected"}, nil, model.MoodSobbing)
	if err := writeVerdict(&buf, v, &alert.Recorder{}, true); err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got["threat_level"] != "HIGH" || got["score"] != float64(75) {
		t.Errorf("json = %v", got)
	}
	if s, ok := got["suggestions"].([]any); !ok || len(s) != 0 {
		t.Errorf("suggestions = %v, want empty list", got["suggestions"])
	}
}

func TestBuildSinks(t *testing.T) {
	dir := t.TempDir()
	sinks, err := buildSinks([]config.SinkConfig{
		{Type: "file_jsonl", Path: filepath.Join(dir, "alerts.jsonl")},
		{Type: "webhook", URL: "http://127.0.0.1:9/hook", Timeout: time.Second},
		{Type: "log"},
		{Type: "sqlite", Path: filepath.Join(dir, "history.db")},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sinks.Close()

	if len(sinks) != 4 {
		t.Fatalf("sinks = %d, want 4", len(sinks))
	}
	if _, ok := sinks[0].(*alert.FileSink); !ok {
		t.Errorf("sinks[0] = %T", sinks[0])
	}
	if _, ok := sinks[1].(*alert.WebhookSink); !ok {
		t.Errorf("sinks[1] = %T", sinks[1])
	}
	if _, ok := sinks[2].(*alert.LogSink); !ok {
		t.Errorf("sinks[2] = %T", sinks[2])
	}
	if _, ok := sinks[3].(*alert.HistorySink); !ok {
		t.Errorf("sinks[3] = %T", sinks[3])
	}
}

func TestMonitorOptions(t *testing.T) {
	mc := config.Default().Monitor
	opts := monitorOptions(mc, 10*time.Second)
	if opts.Marker != nil {
		t.Error("expected built-in marker when none configured")
	}
	if opts.Aggregate.Threshold != 20 || opts.Aggregate.Window != 2*time.Second || opts.Aggregate.DismissAfter != 10*time.Second {
		t.Errorf("aggregate = %+v", opts.Aggregate)
	}
	if !opts.InitialSweep {
		t.Error("expected initial sweep")
	}

	mc.MarkerClass = "kidguard"
	opts = monitorOptions(mc, 0)
	if opts.Marker == nil || opts.Marker.ClassPrefix != "kidguard" || len(opts.Marker.IDs) == 0 {
		t.Errorf("marker = %+v", opts.Marker)
	}
}

func TestSetupLogging(t *testing.T) {
	if err := setupLogging(config.LoggingConfig{Level: "debug", Format: "json"}); err != nil {
		t.Fatal(err)
	}
	if err := setupLogging(config.LoggingConfig{Level: "chatty", Format: "console"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := setupLogging(config.LoggingConfig{Level: "info", Format: "console"}); err != nil {
		t.Fatal(err)
	}
}

func TestWriteHistory(t *testing.T) {
	events := []alert.Event{
		{Kind: alert.KindAlert, Level: "HIGH", SourceCount: 2, Excerpts: []string{"a", "b"}, Findings: []string{"grooming"}},
		{Kind: alert.KindAnnotate, Level: "LOW", Path: "body > p", Text: "you're so stupid"},
		{Kind: alert.KindOffline, Error: "connection refused"},
	}

	var buf bytes.Buffer
	if err := writeHistory(&buf, events, false); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"2 message(s): a | b", "- grooming", "body > p", "offline  connection refused"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("history output missing %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := writeHistory(&buf, nil, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No events recorded.") {
		t.Errorf("output = %q", buf.String())
	}
}
