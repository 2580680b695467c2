package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strand/internal/logger"
)

// loadedConfig is read once before any command runs.
var loadedConfig Config

func main() {
	app := &cli.Command{
		Name:  "strand",
		Usage: "Chat with and serve recurrent language models",
		Flags: loggingFlags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := LoadConfig()
			if err != nil {
				return ctx, cli.Exit(err.Error(), 1)
			}
			loadedConfig = cfg
			if cfg.LogLevel != "" && !cmd.IsSet("log-level") {
				logLevel = cfg.LogLevel
			}
			if cfg.LogFormat != "" && !cmd.IsSet("log-format") {
				logFormat = cfg.LogFormat
			}
			level := logLevel
			if debug {
				level = "debug"
			}
			return logger.WithContext(ctx, logger.Setup(level, logFormat, os.Stderr)), nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			chatCmd(),
			generateCmd(),
			serveCmd(),
			tokenizeCmd(),
			detokenizeCmd(),
			versionCmd(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
