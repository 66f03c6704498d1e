package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "quill: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := newCLI(os.Stdout, os.Stderr)
	err := c.rootCmd().ExecuteContext(ctx)
	if closeErr := c.teardown(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
