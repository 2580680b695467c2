package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strand/internal/api"
	"github.com/samcharles93/strand/internal/inference"
	"github.com/samcharles93/strand/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		modelName   string
		stops       []string
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve OpenAI-style completion endpoints",
		Flags: append(append(commonModelFlags(), samplingFlags(inference.DefaultMaxTokens)...),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8000",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.StringFlag{
				Name:        "model-name",
				Usage:       "model id reported by /v1/models",
				Value:       "strand",
				Destination: &modelName,
			},
			&cli.StringSliceFlag{
				Name:        "stop",
				Usage:       "default stop string (repeatable)",
				Value:       []string{api.DefaultStop},
				Destination: &stops,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(cmd, loadedConfig, &addr)

			eng, err := loadEngine(ctx, cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			server, err := api.NewServer(api.Config{
				Generator: eng.gen,
				Defaults:  samplingDefaults(),
				Stop:      stops,
				ModelName: modelName,
				Logger:    log,
			})
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			e := echo.New()
			if sl, ok := log.(*logger.SlogLogger); ok {
				e.Logger = sl.Slog().With("component", "http")
			}
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
