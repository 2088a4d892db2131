package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the classification service is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		status, err := client.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("%s: %w", client.BaseURL(), err)
		}
		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is online\n%s\n", client.BaseURL(), out)
		return nil
	},
}
