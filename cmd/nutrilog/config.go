package nutrilog

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saadjs/nutrilog/internal/service"
)

var configBias []string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage stored settings",
}

var configSetCmd = &cobra.Command{
	Use:   "set [key value]",
	Short: "Store a setting, e.g. timezone Europe/Ljubljana or --bias off=0.05",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && len(configBias) > 0 {
			return nil
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(sqldb *sql.DB) error {
			if len(args) == 2 {
				if err := service.SetConfig(sqldb, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Set %s\n", args[0])
			}
			for _, kv := range configBias {
				provider, value, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("--bias expects provider=value, got %q", kv)
				}
				key := "source_bias." + strings.TrimSpace(provider)
				if err := service.SetConfig(sqldb, key, value); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Set %s\n", key)
			}
			return nil
		})
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Show stored settings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(sqldb *sql.DB) error {
			if len(args) == 1 {
				v, ok, err := service.GetConfig(sqldb, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("config key %q is not set", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			}
			values, err := service.ListConfig(sqldb)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", k, values[k])
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd, configGetCmd)
	configSetCmd.Flags().StringSliceVar(&configBias, "bias", nil, "Provider bias as provider=value (repeatable)")
}
