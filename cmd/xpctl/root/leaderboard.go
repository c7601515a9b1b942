package root

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func requireGuild(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("guild id is required")
	}
	return nil
}

func newLeaderboardCmd() *cobra.Command {
	var limit, page int
	cmd := &cobra.Command{
		Use:   "leaderboard <guild-id>",
		Short: "Print the XP ranking of a guild",
		Args:  requireGuild,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			if page < 1 {
				page = 1
			}
			rows, err := store.GetLeaderboard(context.Background(), args[0], limit, (page-1)*limit)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no users with XP yet")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tUSER\tLEVEL\tXP\tLAST AWARD")
			for i, row := range rows {
				last := "-"
				if row.LastAwardAt != nil {
					last = humanize.Time(*row.LastAwardAt)
				}
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", (page-1)*limit+i+1, row.UserID, row.Level, humanize.Comma(int64(row.XP)), last)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "rows per page")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	return cmd
}

func newStreaksCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "streaks <guild-id>",
		Short: "Print the longest activity streaks of a guild",
		Args:  requireGuild,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			streaks, err := store.GetTopStreaks(context.Background(), args[0], limit)
			if err != nil {
				return err
			}
			if len(streaks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no active streaks")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tUSER\tHOURS\tACTIVITY\tACTIVE\tUPDATED")
			for i, s := range streaks {
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%t\t%s\n", i+1, s.UserID, s.Hours, s.Label, s.Active, humanize.Time(s.LastUpdate))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of streaks")
	return cmd
}
