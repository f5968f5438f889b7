package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ankittk/usagi/internal/cli"
	"github.com/ankittk/usagi/internal/daemon"
)

const (
	exitOK      = 0
	exitError   = 1
	exitRunning = 2 // another usagi process holds the root lock
)

// Run executes the CLI and maps the outcome to a process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := cli.NewRootCmd(Version)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, daemon.ErrLocked):
		fmt.Fprintf(stderr, "usagi: %v\n", err)
		return exitRunning
	default:
		fmt.Fprintf(stderr, "usagi: %v\n", err)
		return exitError
	}
}
