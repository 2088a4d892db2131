// Package cli implements the blinky command tree.
package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sprite-ai/blinky/internal/aggregate"
	"github.com/sprite-ai/blinky/internal/alert"
	"github.com/sprite-ai/blinky/internal/classify"
	"github.com/sprite-ai/blinky/internal/config"
	"github.com/sprite-ai/blinky/internal/dom"
	"github.com/sprite-ai/blinky/internal/filter"
	"github.com/sprite-ai/blinky/internal/monitor"
)

// cfg is populated by the root command before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "blinky",
	Short: "Watch live conversations for threats to children",
	Long: `blinky watches the text of live pages, sends new messages to a
classification service and raises combined alerts for bullying, grooming,
inappropriate content and scams.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "blinky.yaml", "path to config file")
	pf.String("service-url", "", "classification service base URL (overrides config)")
	pf.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	pf.String("log-format", "", "log format: console, json (overrides config)")

	rootCmd.AddCommand(serveCmd, watchCmd, scanCmd, checkCmd, historyCmd, healthCmd, chatCmd, versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func setup(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	loaded, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", path, err)
	}

	if v, _ := cmd.Flags().GetString("service-url"); v != "" {
		loaded.Service.BaseURL = strings.TrimRight(v, "/")
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		loaded.Logging.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		loaded.Logging.Format = v
	}

	if err := config.Validate(loaded); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg = loaded

	return setupLogging(cfg.Logging)
}

func setupLogging(lc config.LoggingConfig) error {
	level, err := zerolog.ParseLevel(strings.ToLower(lc.Level))
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	if lc.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return nil
}

func newClient() *classify.Client {
	return classify.New(cfg.Service.BaseURL, cfg.Service.Timeout)
}

func monitorOptions(mc config.MonitorConfig, dismissAfter time.Duration) monitor.Options {
	opts := monitor.Options{
		Filter:       filter.New(mc.MinLength, mc.MaxLength),
		SweepFilter:  filter.New(mc.SweepMinLength, mc.SweepMaxLength),
		InitialSweep: mc.InitialSweepEnabled(),
		Aggregate: aggregate.Config{
			Threshold:      mc.DispatchThreshold,
			Window:         mc.Debounce,
			MaxFindings:    mc.MaxFindings,
			MaxSuggestions: mc.MaxSuggestions,
			DismissAfter:   dismissAfter,
		},
	}
	if len(mc.MarkerIDs) > 0 || mc.MarkerClass != "" {
		marker := dom.DefaultMarker()
		if len(mc.MarkerIDs) > 0 {
			marker.IDs = mc.MarkerIDs
		}
		if mc.MarkerClass != "" {
			marker.ClassPrefix = mc.MarkerClass
		}
		opts.Marker = &marker
	}
	return opts
}

// buildSinks opens every configured alert sink. The returned Multi owns the
// file handles; Close it when done.
func buildSinks(sinks []config.SinkConfig) (alert.Multi, error) {
	var out alert.Multi
	for i, sc := range sinks {
		switch sc.Type {
		case "file_jsonl":
			fs, err := alert.NewFileSink(sc.Path)
			if err != nil {
				out.Close()
				return nil, fmt.Errorf("alerts.sinks[%d]: %w", i, err)
			}
			out = append(out, fs)
		case "sqlite":
			hs, err := alert.NewHistorySink(sc.Path)
			if err != nil {
				out.Close()
				return nil, fmt.Errorf("alerts.sinks[%d]: %w", i, err)
			}
			out = append(out, hs)
		case "webhook":
			ws, err := alert.NewWebhookSink(sc.URL, sc.Headers, sc.Timeout)
			if err != nil {
				out.Close()
				return nil, fmt.Errorf("alerts.sinks[%d]: %w", i, err)
			}
			out = append(out, ws)
		case "log":
			out = append(out, alert.NewLogSink(log.Logger))
		}
	}
	return out, nil
}
