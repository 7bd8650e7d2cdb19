package nutrilog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/saadjs/nutrilog/internal/service"
)

var (
	cacheProvider string
	cacheLimit    int
	cacheExpired  bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and purge cached provider searches",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached searches",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(sqldb *sql.DB) error {
			rows, err := service.ListProviderSearchCache(sqldb, cacheProvider, cacheLimit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "PROVIDER\tQUERY\tLIMIT\tRESULTS\tEXPIRES")
			for _, r := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d\t%d\t%s\n", r.Provider, r.Query, r.Limit, r.ResultCount, r.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		})
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cached searches",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(sqldb *sql.DB) error {
			n, err := service.PurgeProviderSearchCache(sqldb, cacheProvider, cacheExpired, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d cached searches\n", n)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheListCmd, cachePurgeCmd)
	cacheListCmd.Flags().StringVar(&cacheProvider, "provider", "", "Filter by provider")
	cacheListCmd.Flags().IntVar(&cacheLimit, "limit", 50, "Maximum rows")
	cachePurgeCmd.Flags().StringVar(&cacheProvider, "provider", "", "Only this provider")
	cachePurgeCmd.Flags().BoolVar(&cacheExpired, "expired", false, "Only expired rows")
}
