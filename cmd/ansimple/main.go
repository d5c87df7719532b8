package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eniac111/ansimple/internal/cmd"
	"github.com/eniac111/ansimple/internal/exitcode"
	"github.com/eniac111/ansimple/internal/types"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.ExecuteContext(ctx)
	code := exitcode.DetermineExitCode(err)
	switch {
	case err == nil:
	case code == exitcode.Interrupted:
		fmt.Fprintln(os.Stderr, "\nOperation cancelled by user")
	case errors.Is(err, types.ErrMissingIdentity):
		fmt.Fprintln(os.Stderr, "Missing $USER in env")
	case errors.Is(err, exitcode.ErrUsage):
		fmt.Fprintf(os.Stderr, "Error: %v\nRun 'ansimple --help' for usage.\n", err)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	stop()
	exitcode.ExitWithError(err)
}
