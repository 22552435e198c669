package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"promptbridge/internal/command"
	"promptbridge/internal/config"
)

var version = "dev"

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := command.BuildApp(command.Deps{
		LoadConfig:  config.LoadConfig,
		RunSession:  runSession,
		ListHistory: listHistory,
		ShowEvents:  showEvents,
	})
	app.Version = version

	if err := app.RunContext(rootCtx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
