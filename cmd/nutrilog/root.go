package nutrilog

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	dbPath     string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "nutrilog",
	Short: "nutrilog logs what you eat from plain-language phrases",
	Long: "nutrilog turns phrases like \"200 g skyr\" into diary items with calories and macros,\n" +
		"resolving foods against Open Food Facts, USDA FoodData Central and Nutritionix and\n" +
		"remembering your phrases so repeats log instantly.",
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to SQLite database")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (yaml, toml or json)")
}
