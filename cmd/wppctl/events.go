package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/lock"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/session"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var eventsCmd = &cobra.Command{
	Use:   "events [prefix]",
	Short: "Stream daemon events until interrupted",
	Long: `Stream daemon events whose kind starts with prefix, for example
"session." or "history.". Without a prefix every event is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		c, err := dial()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		events, errs, err := c.Events(ctx, prefix)
		if err != nil {
			return err
		}
		for evt := range events {
			if jsonOut {
				outputJSON(evt)
				continue
			}
			at := time.UnixMilli(getInt(evt, "occurred_at_ms")).Format("15:04:05")
			fmt.Fprintf(cmd.OutOrStdout(), "%s %-26s %v\n", at, getString(evt, "kind"), evt["payload"])
		}
		return streamEnd(<-errs)
	},
}

// streamEnd treats an interrupt or a daemon shutdown as a clean exit.
func streamEnd(err error) error {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.Canceled {
		return nil
	}
	return err
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List local sessions and whether their daemon is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		names, err := session.List()
		if err != nil {
			return err
		}
		active, _ := activeSession()

		type row struct {
			Name    string `json:"name"`
			Path    string `json:"path"`
			Running bool   `json:"daemon_running"`
			PID     int    `json:"pid,omitempty"`
			Bridge  string `json:"bridge,omitempty"`
			Active  bool   `json:"active"`
		}
		rows := make([]row, 0, len(names))
		for _, name := range names {
			info, held := lock.Probe(session.Dir(name))
			r := row{Name: name, Path: session.Dir(name), Running: held, Active: name == active}
			if held {
				r.PID, r.Bridge = info.PID, info.Bridge
			}
			rows = append(rows, r)
		}

		if jsonOut {
			outputJSON(rows)
			return nil
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
			return nil
		}
		for _, r := range rows {
			mark := " "
			if r.Active {
				mark = "*"
			}
			state := "stopped"
			if r.Running {
				state = fmt.Sprintf("running, pid %d, %s", r.PID, r.Bridge)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %-20s %s (%s)\n", mark, r.Name, r.Path, state)
		}
		return nil
	},
}
