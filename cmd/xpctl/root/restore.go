package root

import (
	"context"
	"errors"
	"fmt"

	"activity-xp/internal/storage"

	"github.com/spf13/cobra"
)

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file>",
		Short: "Load a JSON backup into the database",
		Long: `Restore upserts every row of a backup file.

Existing rows for the same guild and user are overwritten. Levels are
recomputed from XP, so a hand-edited backup cannot leave them inconsistent.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("backup file is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			backup, err := storage.LoadBackupFile(args[0])
			if err != nil {
				return err
			}
			store, _, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := store.Import(context.Background(), backup); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d users, %d streaks, %d guilds, %d reward roles\n",
				len(backup.UserXP), len(backup.Streaks), len(backup.GuildConfigs), len(backup.LevelRoles))
			return nil
		},
	}
}
