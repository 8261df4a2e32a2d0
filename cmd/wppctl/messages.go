package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/api"
)

var (
	messagesLimit  int
	messagesResync bool
	messagesCached bool
	messagesBefore int64
)

var messagesCmd = &cobra.Command{
	Use:   "messages <chat>",
	Short: "Show a chat's history, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			req := map[string]any{
				"chat_id": args[0],
				"limit":   messagesLimit,
				"resync":  messagesResync,
				"cached":  messagesCached,
				"before":  messagesBefore,
			}
			resp, err := c.Call(ctx, api.MethodListMessages, req)
			if err != nil {
				return err
			}
			if jsonOut {
				outputJSON(resp)
				return nil
			}
			printMessages(cmd.OutOrStdout(), getList(resp, "messages"))
			return nil
		})
	},
}

func init() {
	messagesCmd.Flags().IntVar(&messagesLimit, "limit", 0, "messages to fetch (default: history_limit)")
	messagesCmd.Flags().BoolVar(&messagesResync, "resync", false, "replace the cached thread with the bridge's view")
	messagesCmd.Flags().BoolVar(&messagesCached, "cached", false, "read the local mirror instead of the bridge")
	messagesCmd.Flags().Int64Var(&messagesBefore, "before", 0, "with --cached, only messages older than this unix time in ms")
}

var sendCmd = &cobra.Command{
	Use:   "send <chat> <text>...",
	Short: "Send a text message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args[1:], " ")
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			resp, err := c.Call(ctx, api.MethodSendText, map[string]any{"chat_id": args[0], "text": text})
			if err != nil {
				return err
			}
			if jsonOut {
				outputJSON(resp)
				return nil
			}
			msg, _ := resp["message"].(map[string]any)
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s (%s)\n", getString(msg, "id"), getString(msg, "delivery_status"))
			return nil
		})
	},
}

var (
	searchChat  string
	searchLimit int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>...",
	Short: "Full-text search over mirrored messages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			req := map[string]any{"query": strings.Join(args, " "), "chat_id": searchChat, "limit": searchLimit}
			resp, err := c.Call(ctx, api.MethodSearchMessages, req)
			if err != nil {
				return err
			}
			if jsonOut {
				outputJSON(resp)
				return nil
			}
			results := getList(resp, "results")
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matches.")
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
					clock(getInt(r, "timestamp")), pad(getString(r, "chat_id"), 24), getString(r, "snippet"))
			}
			return nil
		})
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchChat, "chat", "", "restrict to one chat")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum results (default 50)")
}
