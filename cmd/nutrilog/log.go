package nutrilog

import (
	"strings"

	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log <phrase...>",
	Short: "Log food from a plain-language phrase",
	Example: `  nutrilog log "200 g skyr"
  nutrilog log two eggs and a slice of toast`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		phrase := strings.Join(args, " ")
		return withRuntime(cmd, func(rt *runtime) error {
			intake, err := newIntake(rt)
			if err != nil {
				return err
			}
			step, err := intake.LogPhrase(cmd.Context(), phrase)
			if err != nil {
				return err
			}
			outcome, err := runSteps(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), step)
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), outcome)
			return nil
		})
	},
}

var barcodeCmd = &cobra.Command{
	Use:   "barcode <code>",
	Short: "Log a packaged food by its 8-14 digit barcode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			intake, err := newIntake(rt)
			if err != nil {
				return err
			}
			step, err := intake.LogBarcode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			outcome, err := runSteps(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), step)
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), outcome)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(logCmd, barcodeCmd)
}
