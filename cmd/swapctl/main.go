package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/kjannette/trahn-swap/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := cli.NewApp()
	if err := app.Command().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, cli.ErrCancelled) {
			cli.PrintError(os.Stderr, err)
		}
		stop()
		os.Exit(1)
	}
}
