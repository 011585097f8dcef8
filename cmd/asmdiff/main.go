package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sdejongh/asmdiff/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	cli.Version = version
	cli.Commit = commit
	cli.BuildDate = date

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.NewRootCommand().ExecuteContext(ctx)
	if err != nil && !cli.Reported(err) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return cli.ExitCode(err)
}
