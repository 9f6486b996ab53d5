// Package cmd holds the policypilot command line: serve, chat and ingest.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	configx "github.com/tanpawarit/PolicyPilot/pkg/config"
	logx "github.com/tanpawarit/PolicyPilot/pkg/logger"
)

func NewRootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "policypilot",
		Short: "Insurance policy assistant",
		Long: `PolicyPilot answers questions about insurance policy documents.

A supervisor routes each message to a provider, policy or comparison
specialist, or to the off-topic guardrail. Uploaded PDFs are indexed in
the background and searched by category.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			configx.SetEnvFile(envFile)
			logCfg, err := configx.New[logx.Config]("LOG")
			if err != nil {
				return fmt.Errorf("load log config: %w", err)
			}
			logx.Init(*logCfg)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env", "", "env file to load (default ./.env when present)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewChatCmd())
	cmd.AddCommand(NewIngestCmd())
	return cmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
