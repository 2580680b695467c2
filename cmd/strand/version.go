package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strand/internal/version"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			info := version.Resolve()
			fmt.Printf("strand %s\n", version.String())
			if info.BuildTime != "" {
				fmt.Printf("built:  %s\n", info.BuildTime)
			}
			fmt.Printf("go:     %s\n", info.GoVersion)
			return nil
		},
	}
}
