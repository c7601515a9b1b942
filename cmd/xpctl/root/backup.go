package root

import (
	"context"
	"fmt"

	"activity-xp/internal/storage"

	"github.com/spf13/cobra"
)

func newBackupCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a JSON backup of every XP table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			backup, err := store.Export(context.Background())
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.BackupDir
			}
			path, err := storage.SaveBackupFile(dir, "all", backup)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backup written: %s\n", path)
			fmt.Fprintf(out, "  users %d, streaks %d, guilds %d, reward roles %d\n",
				len(backup.UserXP), len(backup.Streaks), len(backup.GuildConfigs), len(backup.LevelRoles))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "output directory (defaults to backup_dir)")
	return cmd
}
