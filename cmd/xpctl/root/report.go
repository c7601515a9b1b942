package root

import (
	"context"
	"fmt"
	"sort"
	"time"

	"activity-xp/internal/analytics"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newReportCmd() *cobra.Command {
	var since time.Duration
	var top int
	cmd := &cobra.Command{
		Use:   "report <guild-id>",
		Short: "Summarise recent XP events of a guild",
		Args:  requireGuild,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := analytics.New(store).Report(context.Background(), args[0], time.Now().Add(-since), top)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "since %s: %d events, %s XP awarded\n", humanize.Time(report.Since), report.Total, humanize.Comma(int64(report.XPAwarded)))

			events := make([]string, 0, len(report.ByEvent))
			for event := range report.ByEvent {
				events = append(events, event)
			}
			sort.Strings(events)
			for _, event := range events {
				fmt.Fprintf(out, "  %-16s %d\n", event, report.ByEvent[event])
			}
			for i, earner := range report.Earners {
				fmt.Fprintf(out, "#%d %s +%s XP\n", i+1, earner.UserID, humanize.Comma(int64(earner.XP)))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "look-back window")
	cmd.Flags().IntVar(&top, "top", 5, "number of top earners")
	return cmd
}
