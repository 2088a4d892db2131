package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/blinky/internal/alert"
	"github.com/sprite-ai/blinky/internal/dom"
	"github.com/sprite-ai/blinky/internal/model"
	"github.com/sprite-ai/blinky/internal/monitor"
)

var checkCmd = &cobra.Command{
	Use:   "check [text...]",
	Short: "Check a single message (manual scan)",
	Long: `Send one message to the classification service with the manual context,
skipping the noise filter. With no arguments the message is read from stdin.

Examples:
  blinky check "you're so stupid"
  echo "what school do you go to" | blinky check`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().Bool("json", false, "print the verdict as JSON")
}

func runCheck(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		text = string(data)
	}

	rec := &alert.Recorder{}
	opts := monitorOptions(cfg.Monitor, cfg.Alerts.DismissAfter)
	opts.InitialSweep = false
	mon := monitor.New(dom.NewDocument(""), newClient(), rec, opts)
	defer mon.Stop()

	v, err := mon.AnalyzeText(cmd.Context(), text)
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	return writeVerdict(cmd.OutOrStdout(), v, rec, asJSON)
}

func writeVerdict(w io.Writer, v model.Verdict, rec *alert.Recorder, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			IsSafe      bool     `json:"is_safe"`
			Level       string   `json:"threat_level"`
			Score       int      `json:"score"`
			Mood        string   `json:"blinky_emotion"`
			Findings    []string `json:"findings"`
			Suggestions []string `json:"suggestions"`
		}{v.IsSafe, v.Level.String(), v.Score, string(v.Mood), nonNil(v.Findings), nonNil(v.Suggestions)})
	}

	if len(rec.SafeNotices()) > 0 {
		fmt.Fprintln(w, reportCleanStyle.Render("This message looks safe! 👻"))
		return nil
	}

	fmt.Fprintf(w, "%s %s (score %d, %s)\n", levelIcon(v.Level), levelStyle(v.Level).Render(v.Level.String()), v.Score, v.Mood)
	for _, f := range v.Findings {
		fmt.Fprintf(w, "    - %s\n", f)
	}
	for _, s := range v.Suggestions {
		fmt.Fprintf(w, "    > %s\n", s)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
