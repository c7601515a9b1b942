package root

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date: %s\n", cfg.DatabasePath)
			return nil
		},
	}
}
