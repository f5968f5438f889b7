// Command usagi runs the mailbox-driven boss, manager, lead and worker hierarchy over a project root.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Version is stamped with -ldflags "-X main.Version=v1.2.3".
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
