package nutrilog

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saadjs/nutrilog/internal/service"
)

var (
	targetKcal    int
	targetProtein float64
	targetCarbs   float64
	targetFat     float64
	targetFiber   float64
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Manage daily calorie and macro targets",
}

var targetsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update daily targets; unset flags keep their value",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(sqldb *sql.DB) error {
			t, err := service.GetTargets(sqldb)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("kcal") && !flags.Changed("protein") && !flags.Changed("carbs") &&
				!flags.Changed("fat") && !flags.Changed("fiber") {
				return fmt.Errorf("set at least one flag")
			}
			if flags.Changed("kcal") {
				t.Kcal = targetKcal
			}
			if flags.Changed("protein") {
				t.ProteinG = targetProtein
			}
			if flags.Changed("carbs") {
				t.CarbsG = targetCarbs
			}
			if flags.Changed("fat") {
				t.FatG = targetFat
			}
			if flags.Changed("fiber") {
				t.FiberG = targetFiber
			}
			if err := service.SetTargets(sqldb, t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Targets: %d kcal, P %.1fg, C %.1fg, F %.1fg, fiber %.1fg\n", t.Kcal, t.ProteinG, t.CarbsG, t.FatG, t.FiberG)
			return nil
		})
	},
}

var targetsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show daily targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(sqldb *sql.DB) error {
			t, err := service.GetTargets(sqldb)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Targets: %d kcal, P %.1fg, C %.1fg, F %.1fg, fiber %.1fg\n", t.Kcal, t.ProteinG, t.CarbsG, t.FatG, t.FiberG)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(targetsCmd)
	targetsCmd.AddCommand(targetsSetCmd, targetsShowCmd)

	targetsSetCmd.Flags().IntVar(&targetKcal, "kcal", 0, "Daily calories")
	targetsSetCmd.Flags().Float64Var(&targetProtein, "protein", 0, "Daily protein grams")
	targetsSetCmd.Flags().Float64Var(&targetCarbs, "carbs", 0, "Daily carbs grams")
	targetsSetCmd.Flags().Float64Var(&targetFat, "fat", 0, "Daily fat grams")
	targetsSetCmd.Flags().Float64Var(&targetFiber, "fiber", 0, "Daily fiber grams")
}
