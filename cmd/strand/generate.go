package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strand/internal/inference"
	"github.com/samcharles93/strand/internal/logger"
	"github.com/samcharles93/strand/internal/session"
	"github.com/samcharles93/strand/internal/tokenizer"
)

// promptThread holds the evaluated prompt every completion branches from.
const promptThread = "prompt"

func generateCmd() *cli.Command {
	var (
		prompt string
		count  int64
		stops  []string
	)

	return &cli.Command{
		Name:      "generate",
		Usage:     "Generate independent completions of one prompt",
		ArgsUsage: "[prompt]",
		Flags: append(append(commonModelFlags(), samplingFlags(100)...),
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "prompt text (defaults to the arguments)",
				Destination: &prompt,
			},
			&cli.Int64Flag{
				Name:        "count",
				Aliases:     []string{"c"},
				Usage:       "number of completions",
				Value:       1,
				Destination: &count,
			},
			&cli.StringSliceFlag{
				Name:        "stop",
				Usage:       "stop string (repeatable)",
				Destination: &stops,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if prompt == "" {
				prompt = strings.Join(cmd.Args().Slice(), " ")
			}
			if prompt == "" {
				return cli.Exit("a prompt is required (--prompt or arguments)", 1)
			}
			if count <= 0 {
				return cli.Exit("--count must be positive", 1)
			}

			eng, err := loadEngine(ctx, cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			req := inference.ResolveRequest(inference.RequestOptions{Stop: stops}, samplingDefaults())
			if err := req.Validate(); err != nil {
				return cli.Exit(err.Error(), 1)
			}

			_, err = generateCompletions(ctx, eng.gen, prompt, int(count), req.Params(), os.Stdout, log)
			fmt.Println()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

// generateCompletions evaluates prompt once and samples n completions, each
// branched from the evaluated prompt so they are independent. Completions
// are streamed to out under a numbered header.
func generateCompletions(ctx context.Context, gen *inference.Generator, prompt string, n int, p inference.GenerateParams, out io.Writer, log logger.Logger) ([]inference.Result, error) {
	tokens, err := gen.Tokenizer.Encode(prompt)
	if err != nil {
		return nil, fmt.Errorf("encode prompt: %w", err)
	}
	tokens = tokenizer.SplitLastEndOfLine(tokens, gen.Control)

	start := time.Now()
	store := session.NewStore(log)
	wc := &session.Context{}
	if err := gen.Feed(ctx, wc, tokens, 0); err != nil {
		return nil, err
	}
	store.Commit(promptThread, wc)
	log.Info("prompt processed", "tokens", len(tokens), "duration", time.Since(start))

	results := make([]inference.Result, 0, n)
	for i := range n {
		wc, err := store.Branch(promptThread)
		if err != nil {
			return results, err
		}
		_, _ = fmt.Fprintf(out, "\n--- completion %d ---\n", i+1)
		res, err := gen.Generate(ctx, wc, p, func(s string) { _, _ = fmt.Fprint(out, s) })
		if err != nil {
			return results, err
		}
		results = append(results, res)
		log.Debug("completion finished",
			"index", i,
			"tokens", res.Stats.TokensGenerated,
			"reason", string(res.Reason),
			"tps", res.Stats.TPS,
		)
	}
	return results, nil
}
