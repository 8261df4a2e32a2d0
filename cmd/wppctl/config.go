package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/api"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/config"
)

var configReveal bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the session's bridge settings",
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print bridge settings; secrets are masked unless --reveal",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			resp, err := c.Call(ctx, api.MethodGetConfig, map[string]any{"reveal": configReveal})
			if err != nil {
				return err
			}
			if len(args) == 1 {
				v, ok := resp[args[0]]
				if !ok {
					return fmt.Errorf("unknown config key %q", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			}
			if jsonOut {
				outputJSON(resp)
				return nil
			}
			printConfig(cmd, resp)
			return nil
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one bridge setting",
	Long: fmt.Sprintf(`Change one bridge setting. Changing a connection parameter
(server_url, session_name, secret_key, auth_token) drops the current pairing.

Keys: %v`, config.Keys),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			resp, err := c.Call(ctx, api.MethodUpdateConfig, map[string]any{"key": args[0], "value": args[1]})
			if err != nil {
				return err
			}
			if jsonOut {
				outputJSON(resp)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", args[0], resp[args[0]])
			return nil
		})
	},
}

func init() {
	configGetCmd.Flags().BoolVar(&configReveal, "reveal", false, "show secret_key and auth_token")
	configCmd.AddCommand(configGetCmd, configSetCmd)
}

func printConfig(cmd *cobra.Command, resp map[string]any) {
	keys := make([]string, 0, len(resp))
	for k := range resp {
		if k != "keys" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "%-20s %v\n", k, resp[k])
	}
}
