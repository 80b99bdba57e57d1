package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var forceDelete bool

var deleteCampaignCmd = &cobra.Command{
	Use:   "delete-campaign <name>",
	Short: "Delete a campaign and everything imported for it",
	Long: `Delete a campaign together with its tests, params, result rows, log rows and
failure messages. Artefact records are kept, unlinked and marked unprocessed,
so the next import brings the campaign back while its files remain on disk.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeleteCampaign,
}

func init() {
	rootCmd.AddCommand(deleteCampaignCmd)
	deleteCampaignCmd.Flags().BoolVarP(&forceDelete, "force", "f", false, "Skip confirmation prompt")
}

func runDeleteCampaign(_ *cobra.Command, args []string) error {
	name := args[0]
	ctx := context.Background()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}

	defer stopStore(st)

	// Prompt for confirmation if not forced.
	if !forceDelete {
		fmt.Printf("Delete campaign %q and all of its tests? [y/N] ", name)

		reader := bufio.NewReader(os.Stdin)

		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")

			return nil
		}
	}

	if err := st.DeleteCampaign(ctx, name); err != nil {
		return fmt.Errorf("deleting campaign: %w", err)
	}

	log.WithField("campaign", name).Info("Campaign deleted")

	return nil
}
