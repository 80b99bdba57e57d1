package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/archivoor/pkg/importer"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print archive statistics",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}

		defer stopStore(st)

		stats, err := st.Stats(ctx)
		if err != nil {
			return fmt.Errorf("reading statistics: %w", err)
		}

		return importer.WriteStats(os.Stdout, stats)
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}
