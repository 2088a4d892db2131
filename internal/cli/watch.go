package cli

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sprite-ai/blinky/internal/alert"
	"github.com/sprite-ai/blinky/internal/relay"
	"github.com/sprite-ai/blinky/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the monitor relay for live pages",
	Long: `Listen for page agents on a websocket. Each agent sends a snapshot of
its page followed by DOM mutations; blinky classifies new messages and pushes
annotations and combined alerts back over the same connection.

Endpoints:
  GET /ws      — Page agent websocket
  GET /health  — Health check

Examples:
  blinky watch                          # log alerts to stderr
  blinky watch --tui                    # live dashboard
  blinky watch --addr 0.0.0.0:6143`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringP("addr", "a", "", "address to listen on (overrides relay.addr)")
	watchCmd.Flags().Bool("tui", false, "show the live alert dashboard")
}

func runWatch(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Relay.Addr
	}
	useTUI, _ := cmd.Flags().GetBool("tui")

	sinks, err := buildSinks(cfg.Alerts.Sinks)
	if err != nil {
		return err
	}
	defer sinks.Close()

	client := newClient()
	opts := monitorOptions(cfg.Monitor, cfg.Alerts.DismissAfter)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !useTUI {
		extra := append(alert.Multi{alert.NewLogSink(log.Logger)}, sinks...)
		srv := &http.Server{Addr: addr, Handler: relay.New(client, opts, extra).Handler()}
		return serveUntil(ctx, srv)
	}

	// The dashboard owns the terminal.
	log.Logger = log.Output(io.Discard)

	var srv *http.Server
	errc := make(chan error, 1)
	m := tui.New("ws://"+addr+"/ws", cfg.Alerts.DismissAfter)
	err = tui.Run(m, func(s *tui.Sink) {
		extra := append(alert.Multi{s}, sinks...)
		srv = &http.Server{Addr: addr, Handler: relay.New(client, opts, extra).Handler()}
		go func() { errc <- serveUntil(ctx, srv) }()
	})
	stop()
	if srv != nil {
		if serr := <-errc; serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

// serveUntil runs srv until ctx is done, then shuts it down.
func serveUntil(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	log.Info().Str("addr", srv.Addr).Msg("relay listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
