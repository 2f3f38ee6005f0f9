package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohit-ambani/auditflow-sub000/cmd/auditflow/cmd"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()

	if code := cmd.NewCLIErrorHandler().HandleError(err); code != 0 {
		os.Exit(code)
	}
}
