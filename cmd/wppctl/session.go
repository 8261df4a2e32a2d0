package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/api"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/status"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			resp, err := c.Call(ctx, api.MethodGetStatus, nil)
			if err != nil {
				return err
			}
			if jsonOut {
				outputJSON(resp)
				return nil
			}
			printStatus(cmd, resp)
			return nil
		})
	},
}

func printStatus(cmd *cobra.Command, resp map[string]any) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session: %s\n", getString(resp, "session"))
	fmt.Fprintf(out, "Bridge:  %s\n", getString(resp, "server_url"))
	fmt.Fprintf(out, "State:   %s\n", getString(resp, "state"))
	if phone := getString(resp, "phone"); phone != "" {
		fmt.Fprintf(out, "Phone:   %s\n", phone)
	}
	if e := getString(resp, "last_error"); e != "" {
		fmt.Fprintf(out, "Error:   %s\n", e)
	}
	fmt.Fprintf(out, "Chats:   %d cached, %d in catalog\n", getInt(resp, "chat_count"), getInt(resp, "catalog_size"))
	fmt.Fprintf(out, "Stored:  %d messages\n", getInt(resp, "message_count"))
	fmt.Fprintf(out, "Uptime:  %s\n", (time.Duration(getInt(resp, "uptime_ms")) * time.Millisecond).Round(time.Second))
}

// pairWait is the default --timeout of connect --wait.
const pairWait = 2 * time.Minute

var (
	connectWait  bool
	connectQROut string
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Start the bridge session and pair it by QR",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if connectWait && !cmd.Flags().Changed("timeout") {
			timeout = pairWait
		}
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			resp, err := c.Call(ctx, api.MethodConnect, nil)
			if err != nil {
				return err
			}
			if !connectWait {
				return showPairing(cmd, resp)
			}
			return waitPaired(ctx, cmd, c, resp)
		})
	},
}

func init() {
	connectCmd.Flags().BoolVar(&connectWait, "wait", false, "keep showing the QR until the phone is paired")
	connectCmd.Flags().StringVar(&connectQROut, "qr-out", "", "also write the QR as a PNG to this file")
}

func showPairing(cmd *cobra.Command, resp map[string]any) error {
	if jsonOut {
		outputJSON(resp)
		return nil
	}
	out := cmd.OutOrStdout()
	switch status.State(getString(resp, "state")) {
	case status.Connected:
		fmt.Fprintf(out, "Connected as %s\n", getString(resp, "phone"))
	case status.AwaitingScan:
		image := getString(resp, "qr_image")
		renderQR(out, getString(resp, "qr_code"), image)
		if connectQROut != "" && image != "" {
			if err := writeQRImage(connectQROut, image); err != nil {
				return err
			}
			fmt.Fprintf(out, "QR written to %s\n", connectQROut)
		}
	default:
		fmt.Fprintf(out, "State: %s\n", getString(resp, "state"))
	}
	return nil
}

// waitPaired polls the daemon, redrawing the QR whenever the bridge rotates
// it, until the session connects or the pairing attempt ends. The timeout
// flag bounds the wait.
func waitPaired(ctx context.Context, cmd *cobra.Command, c *api.Client, resp map[string]any) error {
	shown := ""
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		switch status.State(getString(resp, "state")) {
		case status.Connected:
			return showPairing(cmd, resp)
		case status.AwaitingScan:
			if qr := getString(resp, "qr_image"); qr != shown {
				shown = qr
				if err := showPairing(cmd, resp); err != nil {
					return err
				}
			}
		default:
			if e := getString(resp, "last_error"); e != "" {
				return fmt.Errorf("pairing ended: %s", e)
			}
			return fmt.Errorf("pairing ended in state %s", getString(resp, "state"))
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("still waiting for the QR scan: %w", ctx.Err())
		case <-ticker.C:
		}
		next, err := c.Call(ctx, api.MethodGetStatus, nil)
		if err != nil {
			return err
		}
		resp = next
	}
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Close the bridge session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			resp, err := c.Call(ctx, api.MethodDisconnect, nil)
			if err != nil {
				return err
			}
			if jsonOut {
				outputJSON(resp)
				return nil
			}
			if w := getString(resp, "warning"); w != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Disconnected.")
			return nil
		})
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate and store a bridge auth token from the secret key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			resp, err := c.Call(ctx, api.MethodGenerateToken, nil)
			if err != nil {
				return err
			}
			if jsonOut {
				outputJSON(resp)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Auth token generated and saved.")
			return nil
		})
	},
}
