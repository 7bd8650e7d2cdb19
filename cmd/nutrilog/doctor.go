package nutrilog

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saadjs/nutrilog/internal/service"
)

var doctorFix bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diary integrity checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(sqldb *sql.DB) error {
			report, err := service.RunDoctor(sqldb, doctorFix)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Orphan items: %d\n", report.OrphanItems)
			fmt.Fprintf(out, "Item/entry date mismatches: %d\n", report.DateMismatches)
			fmt.Fprintf(out, "Aliases to missing products: %d\n", report.DanglingAliases)
			fmt.Fprintf(out, "Days with drifted totals: %d", len(report.DriftedTotals))
			if len(report.DriftedTotals) > 0 {
				fmt.Fprintf(out, " (%s)", strings.Join(report.DriftedTotals, ", "))
			}
			fmt.Fprintln(out)
			if doctorFix {
				fmt.Fprintf(out, "Fixed items: %d\n", report.FixedItems)
				fmt.Fprintf(out, "Recomputed days: %d\n", report.RecomputedDays)
				// Re-check after fixes so exit status reflects final state.
				report, err = service.RunDoctor(sqldb, false)
				if err != nil {
					return err
				}
			}
			if !report.Healthy() {
				return fmt.Errorf("doctor found integrity issues")
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "Repair items and rebuild drifted totals")
}
