package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sayan-gitkid/sample-aws-tests/internal/cli/athenarun"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	options := athenarun.Options{
		Lookup: os.LookupEnv,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}

	code := athenarun.Run(ctx, os.Args[1:], options)
	stop()
	os.Exit(code)
}
