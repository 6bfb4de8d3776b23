package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/parity/internal/cmd"
	"github.com/felixgeelhaar/parity/internal/exitcode"
)

func main() {
	// Cancel the run on interrupt; workers tear down their processes and the
	// partial report is still written.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := cmd.HandleError(cmd.ExecuteContext(ctx), os.Stderr)
	stop()
	exitcode.Exit(code)
}
