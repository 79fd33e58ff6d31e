// Command marketctl parses market price sheets locally and manages reports
// on a running report server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/marketboard/internal/core"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCommand(&app{getenv: os.Getenv}).ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marketctl: %v\n", err)
		if core.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, core.FormatUserError(err))
		}
		stop()
		os.Exit(1)
	}
}
