// Command wppctl talks to a running wppd over its session socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/api"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/lock"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/session"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	sessionFlag string
	jsonOut     bool
	timeout     time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "wppctl",
	Short: "Control a wpp bridge session daemon",
	Long: `wppctl drives a wppd daemon: pair the bridge session, browse chats and
history, send messages and edit the session's bridge settings.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "session name (overrides $WPP_SESSION and config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	rootCmd.AddCommand(statusCmd, connectCmd, disconnectCmd, tokenCmd)
	rootCmd.AddCommand(chatsCmd, pinCmd, watchCmd, unwatchCmd)
	rootCmd.AddCommand(messagesCmd, sendCmd, searchCmd)
	rootCmd.AddCommand(configCmd, eventsCmd, sessionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", describe(err))
		os.Exit(1)
	}
}

// activeSession resolves and validates the session the command targets.
func activeSession() (string, error) {
	name := session.Resolve(sessionFlag)
	if err := session.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// dial connects to the daemon of the active session.
func dial() (*api.Client, error) {
	name, err := activeSession()
	if err != nil {
		return nil, err
	}
	if _, held := lock.Probe(session.Dir(name)); !held {
		return nil, fmt.Errorf("no daemon running for session %q; start one with: wppd --session %s", name, name)
	}
	c, err := api.Dial(session.SocketPath(name))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon for session %q: %w", name, err)
	}
	return c, nil
}

// withClient dials the session daemon and runs fn with a request-scoped context.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *api.Client) error) error {
	c, err := dial()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	return fn(ctx, c)
}

// describe strips the gRPC envelope from daemon errors.
func describe(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	if st.Code() == codes.DeadlineExceeded {
		return errors.New("timed out: " + st.Message())
	}
	return errors.New(st.Message())
}
