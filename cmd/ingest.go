package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Index every PDF under the upload directory",
		Long: `Walk <upload dir>/<category>/*.pdf and add each file to the policy index.

Files that fail to parse are logged and skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			index, err := newIndex()
			if err != nil {
				return err
			}
			ingestor, err := newIngestor(index)
			if err != nil {
				return err
			}

			added, err := ingestor.IngestAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks (%d total in index).\n", added, index.Count())
			return nil
		},
	}
}
