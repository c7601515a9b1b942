package root

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var dbPath string

var rootCmd = &cobra.Command{
	Use:           "xpctl",
	Short:         "Offline administration for the activity XP database",
	Long:          "xpctl inspects and maintains the activity XP SQLite database while the bot is stopped or running.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (defaults to DATABASE_PATH or config.yaml)")

	rootCmd.AddCommand(
		newMigrateCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newLeaderboardCmd(),
		newStreaksCmd(),
		newReportCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error: "+err.Error())
		os.Exit(1)
	}
}
