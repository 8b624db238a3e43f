package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/local/pagetrim/internal/fault"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, "error:", err)
	if fault.IsFatal(err) {
		os.Exit(2)
	}
	os.Exit(1)
}
