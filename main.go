package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"go.aimuz.me/localflow/config"
	"go.aimuz.me/localflow/internal/app"
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
	var verbose bool
	fs := pflag.NewFlagSet("localflow", pflag.ContinueOnError)
	fs.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: localflow [-v]")
		fmt.Fprintln(os.Stderr, "\nHold the hotkey to dictate; release to paste the refined text.")
		fmt.Fprintln(os.Stderr)
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, cfgErr := config.Load()

	opts := app.LogOptions{Debug: verbose}
	if cfgErr == nil {
		opts.Debug = opts.Debug || cfg.Debug
		opts.File = cfg.LogFile
	}
	logger, closer := app.NewLogger(os.Stderr, opts)
	defer closer.Close()
	slog.SetDefault(logger)

	slog.Info("starting localflow", "version", version, "commit", commit, "date", date)
	if cfgErr != nil {
		slog.Error("load config", "error", cfgErr)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.New(cfg).Run(ctx); err != nil {
		slog.Error("run agent", "error", err)
		return 1
	}
	slog.Info("bye")
	return 0
}
