package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/blinky/internal/alert"
	"github.com/sprite-ai/blinky/internal/model"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored alerts from the SQLite history",
	Long: `List events recorded by a sqlite alert sink, newest first.

Examples:
  blinky history                     # last 20 combined alerts
  blinky history --kind annotate     # flagged messages
  blinky history --kind "" -n 100    # everything`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().String("db", "", "history database (defaults to the first sqlite sink in config)")
	historyCmd.Flags().String("kind", alert.KindAlert, "event kind: alert, annotate, offline; empty for all")
	historyCmd.Flags().IntP("limit", "n", 20, "maximum events to list")
	historyCmd.Flags().Bool("json", false, "print events as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		for _, s := range cfg.Alerts.Sinks {
			if s.Type == "sqlite" {
				path = s.Path
				break
			}
		}
	}
	if path == "" {
		return errors.New("no history database: pass --db or configure a sqlite sink")
	}

	hs, err := alert.NewHistorySink(path)
	if err != nil {
		return err
	}
	defer hs.Close()

	kind, _ := cmd.Flags().GetString("kind")
	limit, _ := cmd.Flags().GetInt("limit")
	events, err := hs.List(kind, limit)
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	return writeHistory(cmd.OutOrStdout(), events, asJSON)
}

func writeHistory(w io.Writer, events []alert.Event, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	if len(events) == 0 {
		fmt.Fprintln(w, "No events recorded.")
		return nil
	}
	for _, ev := range events {
		level := model.ParseLevel(ev.Level)
		ts := reportDimStyle.Render(ev.Time.Local().Format("2006-01-02 15:04:05"))
		switch ev.Kind {
		case alert.KindOffline:
			fmt.Fprintf(w, "%s  offline  %s\n", ts, ev.Error)
		case alert.KindAnnotate:
			fmt.Fprintf(w, "%s  %s %s  %s  %s\n", ts, levelIcon(level), levelStyle(level).Render(ev.Level), ev.Path, ev.Text)
		default:
			fmt.Fprintf(w, "%s  %s %s  %d message(s): %s\n", ts, levelIcon(level), levelStyle(level).Render(ev.Level),
				ev.SourceCount, strings.Join(ev.Excerpts, " | "))
			for _, f := range ev.Findings {
				fmt.Fprintf(w, "      - %s\n", f)
			}
		}
	}
	return nil
}
