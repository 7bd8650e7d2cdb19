package nutrilog

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saadjs/nutrilog/internal/service"
)

var (
	todayDate string
	todayJSON bool
	itemsDate string
	itemsJSON bool
)

var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's totals against your targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			date, err := resolveDate(rt.Config, todayDate)
			if err != nil {
				return err
			}
			status, err := service.TodaySummary(rt.DB, date)
			if err != nil {
				return err
			}
			if todayJSON {
				b, err := json.MarshalIndent(status, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal today json: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Date: %s (%d items)\n", status.Date, status.Items)
			for _, p := range status.Progress {
				fmt.Fprintf(out, "%-8s %8.1f / %-8.1f %s\n", p.Name, p.Consumed, p.Target, p.Status())
			}
			return nil
		})
	},
}

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List logged items for a day",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			date, err := resolveDate(rt.Config, itemsDate)
			if err != nil {
				return err
			}
			items, err := service.ListItems(rt.DB, service.ItemFilter{Date: date})
			if err != nil {
				return err
			}
			if itemsJSON {
				b, err := json.MarshalIndent(items, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal items json: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			}
			if len(items) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Nothing logged on %s\n", date)
				return nil
			}
			for _, it := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "- %s  [%.2f]\n", formatItem(it), it.Confidence)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(todayCmd, itemsCmd)
	todayCmd.Flags().StringVar(&todayDate, "date", "", "Date (YYYY-MM-DD), default today")
	todayCmd.Flags().BoolVar(&todayJSON, "json", false, "Output JSON")
	itemsCmd.Flags().StringVar(&itemsDate, "date", "", "Date (YYYY-MM-DD), default today")
	itemsCmd.Flags().BoolVar(&itemsJSON, "json", false, "Output JSON")
}
