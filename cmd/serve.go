package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tanpawarit/PolicyPilot/api"
	configx "github.com/tanpawarit/PolicyPilot/pkg/config"
)

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpCfg, err := configx.New[api.Config]("HTTP")
	if err != nil {
		return fmt.Errorf("load http config: %w", err)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	ingestor, err := newIngestor(a.index)
	if err != nil {
		return err
	}
	ingestor.Start(context.WithoutCancel(ctx))
	defer ingestor.Close()

	server, err := api.New(*httpCfg, a.orchestrator, ingestor)
	if err != nil {
		return err
	}

	log.Info().
		Str("state_backend", a.cfg.StateBackend).
		Int("indexed_chunks", a.index.Count()).
		Msg("policypilot ready")
	return server.ListenAndServe(ctx)
}
