package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/daemon"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/session"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides $WPP_SESSION and config default)")
	socketFlag := flag.String("socket", "", "unix socket path (default: <session dir>/daemon.sock)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{SessionName: sessionName, SocketPath: *socketFlag}),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx").WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
		}),
	)

	app.Run()
}
