package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/api"
)

var (
	chatsCached bool
	chatsLimit  int
	chatsOffset int
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List chats, most recent first",
	Long: `List the session's chats. By default the list is fetched from the bridge;
--cached reads the local mirror instead and works while disconnected.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			req := map[string]any{"cached": chatsCached, "limit": chatsLimit, "offset": chatsOffset}
			resp, err := c.Call(ctx, api.MethodListChats, req)
			if err != nil {
				return err
			}
			if jsonOut {
				outputJSON(resp)
				return nil
			}
			printChats(cmd.OutOrStdout(), getList(resp, "chats"))
			if getBool(resp, "has_more") {
				fmt.Fprintf(cmd.OutOrStdout(), "… more with --offset %d\n", chatsOffset+len(getList(resp, "chats")))
			}
			return nil
		})
	},
}

func init() {
	chatsCmd.Flags().BoolVar(&chatsCached, "cached", false, "read the local mirror instead of the bridge")
	chatsCmd.Flags().IntVar(&chatsLimit, "limit", 0, "maximum chats to show (0 = all, or 50 when cached)")
	chatsCmd.Flags().IntVar(&chatsOffset, "offset", 0, "skip this many cached chats")
}

var pinOff bool

var pinCmd = &cobra.Command{
	Use:   "pin <chat>",
	Short: "Pin a chat to the top of the list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			resp, err := c.Call(ctx, api.MethodSetPin, map[string]any{"chat_id": args[0], "pinned": !pinOff})
			if err != nil {
				return err
			}
			if jsonOut {
				outputJSON(resp)
				return nil
			}
			verb := "Pinned"
			if !getBool(resp, "pinned") {
				verb = "Unpinned"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, getString(resp, "chat_id"))
			return nil
		})
	},
}

func init() {
	pinCmd.Flags().BoolVar(&pinOff, "off", false, "unpin instead")
}

var watchCmd = &cobra.Command{
	Use:   "watch <chat>",
	Short: "Refresh a chat's history in the background",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggleWatch(cmd, api.MethodWatch, args[0], "Watching %s\n", "Already watching %s\n")
	},
}

var unwatchCmd = &cobra.Command{
	Use:   "unwatch <chat>",
	Short: "Stop refreshing a chat in the background",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggleWatch(cmd, api.MethodUnwatch, args[0], "Stopped watching %s\n", "Not watching %s\n")
	},
}

func toggleWatch(cmd *cobra.Command, method, chat, changed, unchanged string) error {
	return withClient(cmd, func(ctx context.Context, c *api.Client) error {
		resp, err := c.Call(ctx, method, map[string]any{"chat_id": chat})
		if err != nil {
			return err
		}
		if jsonOut {
			outputJSON(resp)
			return nil
		}
		format := unchanged
		if getBool(resp, "changed") {
			format = changed
		}
		fmt.Fprintf(cmd.OutOrStdout(), format, getString(resp, "chat_id"))
		return nil
	})
}
