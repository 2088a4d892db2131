package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sprite-ai/blinky/internal/api"
	"github.com/sprite-ai/blinky/internal/config"
	"github.com/sprite-ai/blinky/internal/safety"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the classification service",
	Long: `Start the reference classification service the monitor talks to.

Endpoints:
  GET  /health   — Health check
  POST /analyze  — Classify one text for a site context
  POST /chat     — Ask Blinky a question`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "address to listen on (overrides service.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Service.Addr
	}

	analyzer, err := buildAnalyzer(cfg.Moderation)
	if err != nil {
		return err
	}
	var opts []api.Option
	responder, err := buildResponder(cfg.Chat)
	if err != nil {
		return err
	}
	if responder != nil {
		opts = append(opts, api.WithResponder(responder))
	}

	srv := api.New(addr, analyzer, opts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info().Str("addr", addr).Str("chat", cfg.Chat.Provider).Bool("moderation", cfg.Moderation.Enabled).Msg("classification service listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildAnalyzer(mc config.ModerationConfig) (*safety.Analyzer, error) {
	if !mc.Enabled {
		return safety.New(nil), nil
	}
	scorer, err := safety.NewModerationScorer(os.Getenv(mc.APIKeyEnv), mc.BaseURL, mc.Model)
	if err != nil {
		return nil, fmt.Errorf("moderation: %w (set %s)", err, mc.APIKeyEnv)
	}
	return safety.New(scorer), nil
}

// buildResponder returns nil for the canned provider so the service pairs
// its default responder with its own analyzer.
func buildResponder(cc config.ChatConfig) (api.Responder, error) {
	if cc.Provider != "openai" {
		return nil, nil
	}
	r, err := api.NewOpenAIResponder(os.Getenv(cc.APIKeyEnv), cc.BaseURL, cc.Model)
	if err != nil {
		return nil, fmt.Errorf("chat: %w (set %s)", err, cc.APIKeyEnv)
	}
	return r, nil
}
