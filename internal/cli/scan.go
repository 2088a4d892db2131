package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sprite-ai/blinky/internal/alert"
	"github.com/sprite-ai/blinky/internal/diff"
	"github.com/sprite-ai/blinky/internal/dom"
	"github.com/sprite-ai/blinky/internal/model"
	"github.com/sprite-ai/blinky/internal/monitor"
)

var scanCmd = &cobra.Command{
	Use:   "scan [file.html | commit-range]",
	Short: "Scan a saved page or chat transcripts and report threats",
	Long: `Classify every message in a saved HTML page, or the lines added to chat
transcripts in a diff, and print a report. Useful for CI, cron jobs and
piping into other tools.

Examples:
  blinky scan page.html --url https://discord.com/channels/1
  blinky scan --diff                    # transcripts changed in the work tree
  blinky scan --diff HEAD~1..HEAD       # transcripts added by the last commit
  git diff | blinky scan --diff -       # any diff on stdin

Exit codes:
  0 — clean, no alerts
  1 — alerts raised
  2 — HIGH alerts raised`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().Bool("diff", false, "read chat transcripts from a unified diff instead of HTML")
	scanCmd.Flags().String("url", "", "page address used to detect the site context")
	scanCmd.Flags().String("site", "", "site context override, e.g. discord")
	scanCmd.Flags().StringP("format", "f", "text", "output format: text, json, markdown")
}

// scanReport is what a scan found.
type scanReport struct {
	Source      string
	Context     model.SiteContext
	Messages    int
	Alerts      []model.CombinedAlert
	Annotations []model.Annotation
	Offline     []error
}

// MaxLevel is the highest level among the combined alerts.
func (r *scanReport) MaxLevel() model.Level {
	top := model.LevelNone
	for _, a := range r.Alerts {
		top = max(top, a.Level)
	}
	return top
}

func (r *scanReport) exitCode() int {
	switch {
	case r.MaxLevel() >= model.LevelHigh:
		return 2
	case len(r.Alerts) > 0:
		return 1
	default:
		return 0
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	isDiff, _ := cmd.Flags().GetBool("diff")
	pageURL, _ := cmd.Flags().GetString("url")
	site, _ := cmd.Flags().GetString("site")

	opts := monitorOptions(cfg.Monitor, cfg.Alerts.DismissAfter)
	opts.Context = model.SiteContext(site)

	var (
		doc    *dom.Document
		apply  func(*dom.Document) (int, error)
		source string
	)

	if isDiff {
		raw, err := readDiff(args)
		if err != nil {
			return err
		}
		if strings.TrimSpace(raw) == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No changes to scan.")
			return nil
		}
		set, err := diff.Parse(raw)
		if err != nil {
			return err
		}
		files, added, _ := set.Stats()
		source = fmt.Sprintf("%d transcript(s), %d new line(s)", files, added)
		if pageURL == "" {
			pageURL = "file://transcripts"
		}
		doc = dom.NewDocument(pageURL)
		apply = func(d *dom.Document) (int, error) { return diff.Apply(set, d) }
	} else {
		if len(args) == 0 {
			return errors.New("scan needs an HTML file (or --diff)")
		}
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening page: %w", err)
		}
		defer f.Close()
		if pageURL == "" {
			pageURL = "file://" + args[0]
		}
		if doc, err = dom.ParseHTML(f, pageURL); err != nil {
			return fmt.Errorf("parsing page: %w", err)
		}
		source = args[0]
	}

	sinks, err := buildSinks(cfg.Alerts.Sinks)
	if err != nil {
		return err
	}
	defer sinks.Close()

	report, err := scanDocument(cmd.Context(), doc, newClient(), opts, sinks, apply)
	if err != nil {
		return err
	}
	report.Source = source

	format, _ := cmd.Flags().GetString("format")
	if err := writeReport(cmd.OutOrStdout(), format, report); err != nil {
		return err
	}

	// A clean report is only trustworthy if the service answered.
	if len(report.Offline) > 0 && len(report.Alerts) == 0 {
		return fmt.Errorf("%d classification(s) failed: %w", len(report.Offline), report.Offline[0])
	}
	if code := report.exitCode(); code != 0 {
		os.Exit(code)
	}
	return nil
}

// scanDocument runs one monitor over doc to completion. Without apply the
// current content is swept; with apply the monitor watches the mutations
// apply makes. Everything is flushed before the report is returned.
func scanDocument(ctx context.Context, doc *dom.Document, c monitor.Classifier, opts monitor.Options, extra alert.Multi, apply func(*dom.Document) (int, error)) (*scanReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rec := &alert.Recorder{}
	opts.InitialSweep = false

	mon := monitor.New(doc, c, append(alert.Multi{rec}, extra...), opts)
	if err := mon.Start(ctx); err != nil {
		return nil, err
	}

	report := &scanReport{Context: mon.Context()}
	if apply == nil {
		report.Messages = mon.Sweep()
	} else {
		n, err := apply(doc)
		if err != nil {
			mon.Stop()
			return nil, fmt.Errorf("applying transcripts: %w", err)
		}
		report.Messages = n
	}

	mon.Wait()
	mon.Stop()

	report.Alerts = rec.Alerts()
	report.Annotations = rec.Annotations()
	report.Offline = rec.OfflineErrors()
	return report, nil
}

func readDiff(args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	if len(args) == 1 {
		if data, err := os.ReadFile(args[0]); err == nil {
			return string(data), nil
		}
	}

	repoDir, err := gitRepoRoot()
	if err != nil {
		return "", fmt.Errorf("not in a git repository (or git not installed): %w", err)
	}
	if len(args) == 1 {
		return diff.GitDiffRange(repoDir, args[0])
	}
	return diff.GitDiff(repoDir, "-U0", "HEAD")
}

func gitRepoRoot() (string, error) {
	out, err := exec.Command("git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func writeReport(w io.Writer, format string, r *scanReport) error {
	switch format {
	case "json":
		return outputJSON(w, r)
	case "markdown":
		return outputMarkdown(w, r)
	case "text", "":
		return outputText(w, r)
	default:
		return fmt.Errorf("unknown format %q (want text, json or markdown)", format)
	}
}

var (
	reportHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8be9fd")).Bold(true)
	reportDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272a4"))
	reportCleanStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#50fa7b"))
)

func levelStyle(l model.Level) lipgloss.Style {
	switch l {
	case model.LevelHigh:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5555")).Bold(true)
	case model.LevelMedium:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#ffb86c")).Bold(true)
	case model.LevelLow:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#f1fa8c"))
	default:
		return reportCleanStyle
	}
}

func outputText(w io.Writer, r *scanReport) error {
	fmt.Fprintln(w, reportHeaderStyle.Render(fmt.Sprintf("Scanned %s", r.Source)))
	fmt.Fprintf(w, "%d message(s) checked, context %s, %d flagged, %d alert(s)\n\n",
		r.Messages, r.Context, len(r.Annotations), len(r.Alerts))

	if len(r.Offline) > 0 {
		fmt.Fprintf(w, "%s %d classification(s) failed: %v\n\n",
			levelStyle(model.LevelMedium).Render("!"), len(r.Offline), r.Offline[0])
	}

	if len(r.Alerts) == 0 {
		fmt.Fprintln(w, reportCleanStyle.Render("No threats found."))
		return nil
	}

	for _, a := range r.Alerts {
		fmt.Fprintf(w, "%s %s (%d message(s))\n", levelIcon(a.Level), levelStyle(a.Level).Render(a.Level.String()), a.SourceCount)
		for _, ex := range a.Excerpts {
			fmt.Fprintf(w, "    %s\n", reportDimStyle.Render("“"+ex+"”"))
		}
		for _, f := range a.Findings {
			fmt.Fprintf(w, "    - %s\n", f)
		}
		for _, s := range a.Suggestions {
			fmt.Fprintf(w, "    > %s\n", s)
		}
		fmt.Fprintln(w)
	}

	for _, an := range r.Annotations {
		if an.Fragment.Source == nil {
			continue
		}
		fmt.Fprintf(w, "  %s %s  %s\n", levelIcon(an.Verdict.Level), reportDimStyle.Render(an.Fragment.Source.Path), an.Fragment.Text)
	}
	return nil
}

func outputJSON(w io.Writer, r *scanReport) error {
	type jsonOutput struct {
		Source      string        `json:"source"`
		Context     string        `json:"context"`
		Messages    int           `json:"messages"`
		MaxLevel    string        `json:"max_level"`
		Alerts      []alert.Event `json:"alerts"`
		Annotations []alert.Event `json:"annotations"`
		Offline     []string      `json:"offline,omitempty"`
	}

	out := jsonOutput{
		Source:      r.Source,
		Context:     string(r.Context),
		Messages:    r.Messages,
		MaxLevel:    r.MaxLevel().String(),
		Alerts:      []alert.Event{},
		Annotations: []alert.Event{},
	}
	for _, a := range r.Alerts {
		out.Alerts = append(out.Alerts, alert.AlertEvent(a, model.HintFor(a.Level, cfgDismissAfter())))
	}
	for _, an := range r.Annotations {
		out.Annotations = append(out.Annotations, alert.AnnotationEvent(an))
	}
	for _, err := range r.Offline {
		out.Offline = append(out.Offline, err.Error())
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func outputMarkdown(w io.Writer, r *scanReport) error {
	fmt.Fprintf(w, "## Blinky Scan Report\n\n")
	fmt.Fprintf(w, "**Source:** %s | **Context:** %s | **Messages:** %d\n\n", r.Source, r.Context, r.Messages)
	fmt.Fprintf(w, "**Highest level:** %s | **Alerts:** %d | **Flagged:** %d\n\n", r.MaxLevel(), len(r.Alerts), len(r.Annotations))

	if len(r.Alerts) == 0 {
		fmt.Fprintln(w, "No threats found.")
		return nil
	}

	fmt.Fprintln(w, "| Level | Messages | Findings | Suggestions |")
	fmt.Fprintln(w, "|-------|----------|----------|-------------|")
	for _, a := range r.Alerts {
		fmt.Fprintf(w, "| %s | %d | %s | %s |\n", a.Level, a.SourceCount,
			mdCell(a.Findings), mdCell(a.Suggestions))
	}
	return nil
}

func mdCell(items []string) string {
	return strings.ReplaceAll(strings.Join(items, "<br>"), "|", "\\|")
}

func levelIcon(l model.Level) string {
	switch l {
	case model.LevelHigh:
		return "!!"
	case model.LevelMedium:
		return "! "
	case model.LevelLow:
		return "* "
	default:
		return "  "
	}
}

func cfgDismissAfter() (d time.Duration) {
	if cfg != nil {
		d = cfg.Alerts.DismissAfter
	}
	return d
}
