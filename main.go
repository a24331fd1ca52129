package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"mantis2gitlab/internal/cli"
)

// Imports a Mantis CSV export into a GitLab project. SIGINT and SIGTERM stop
// the run between two GitLab calls.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
