package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"

	"github.com/macropower/loadout/internal/cli"
	"github.com/macropower/loadout/pkg/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := fang.Execute(ctx, cli.NewRootCmd(),
		fang.WithErrorHandler(cli.ErrorHandler),
		fang.WithVersion(version.GetVersion()),
	)

	stop()

	if err != nil {
		os.Exit(1)
	}
}
