package nutrilog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saadjs/nutrilog/internal/model"
	"github.com/saadjs/nutrilog/internal/service"
)

var (
	aliasProduct string
	aliasServing string
	aliasGrams   float64
	aliasJSON    bool
)

var aliasCmd = &cobra.Command{
	Use:   "alias",
	Short: "Manage remembered phrases",
}

var aliasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remembered phrases",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(sqldb *sql.DB) error {
			aliases, err := service.ListAliases(sqldb)
			if err != nil {
				return err
			}
			if aliasJSON {
				b, err := json.MarshalIndent(aliases, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal aliases json: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "PHRASE\tPRODUCT\tSERVING\tGRAMS")
			for _, a := range aliases {
				grams := ""
				if a.GramsOverride != nil {
					grams = formatGrams(*a.GramsOverride)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", a.Phrase, a.ProductID, a.ServingLabel, grams)
			}
			return nil
		})
	},
}

var aliasSetCmd = &cobra.Command{
	Use:   "set <phrase...>",
	Short: "Bind a phrase to a stored product",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		phrase := strings.Join(args, " ")
		return withDB(func(sqldb *sql.DB) error {
			if _, err := service.GetProduct(sqldb, aliasProduct); err != nil {
				return err
			}
			a := model.Alias{Phrase: phrase, ProductID: aliasProduct, ServingLabel: aliasServing}
			if cmd.Flags().Changed("grams") {
				a.GramsOverride = &aliasGrams
			}
			saved, err := service.SetAlias(sqldb, a)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Remembered %q -> %s\n", saved.Phrase, saved.ProductID)
			return nil
		})
	},
}

var aliasDeleteCmd = &cobra.Command{
	Use:   "delete <phrase...>",
	Short: "Forget a phrase",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		phrase := strings.Join(args, " ")
		return withDB(func(sqldb *sql.DB) error {
			if err := service.DeleteAlias(sqldb, phrase); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forgot %q\n", service.NormalizePhrase(phrase))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(aliasCmd)
	aliasCmd.AddCommand(aliasListCmd, aliasSetCmd, aliasDeleteCmd)

	aliasListCmd.Flags().BoolVar(&aliasJSON, "json", false, "Output JSON")
	aliasSetCmd.Flags().StringVar(&aliasProduct, "product", "", "Product id, e.g. off:5690527000015")
	aliasSetCmd.Flags().StringVar(&aliasServing, "serving", "", "Serving label on the product")
	aliasSetCmd.Flags().Float64Var(&aliasGrams, "grams", 0, "Fixed grams for the phrase")
	_ = aliasSetCmd.MarkFlagRequired("product")
}
