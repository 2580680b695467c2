package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strand/internal/tokenizer"
)

func tokenizeCmd() *cli.Command {
	var (
		text    string
		verbose bool
	)
	return &cli.Command{
		Name:      "tokenize",
		Usage:     "Print the token ids of a text",
		ArgsUsage: "[text]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "vocab",
				Aliases:     []string{"v"},
				Usage:       "path to the vocabulary file",
				Sources:     cli.EnvVars(envStrandVocab),
				Destination: &vocabPath,
			},
			&cli.StringFlag{
				Name:        "text",
				Usage:       "text to encode (defaults to the arguments, or stdin when none)",
				Destination: &text,
			},
			&cli.BoolFlag{
				Name:        "verbose",
				Usage:       "print one token per line with its bytes",
				Destination: &verbose,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if loadedConfig.Vocab != "" && !cmd.IsSet("vocab") {
				vocabPath = loadedConfig.Vocab
			}
			_, tok, err := loadVocabulary(ctx)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			input, err := inputText(text, cmd.Args().Slice(), os.Stdin)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			ids, err := tok.Encode(input)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			writeTokens(os.Stdout, tok, ids, verbose)
			return nil
		},
	}
}

func detokenizeCmd() *cli.Command {
	return &cli.Command{
		Name:      "detokenize",
		Usage:     "Print the text of a sequence of token ids",
		ArgsUsage: "ID [ID...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "vocab",
				Aliases:     []string{"v"},
				Usage:       "path to the vocabulary file",
				Sources:     cli.EnvVars(envStrandVocab),
				Destination: &vocabPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if loadedConfig.Vocab != "" && !cmd.IsSet("vocab") {
				vocabPath = loadedConfig.Vocab
			}
			ids, err := parseTokenIDs(cmd.Args().Slice())
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			_, tok, err := loadVocabulary(ctx)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Println(tok.Decode(ids))
			return nil
		},
	}
}

// inputText picks the text to encode: the flag, then the arguments, then
// all of stdin.
func inputText(flag string, args []string, stdin io.Reader) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

// parseTokenIDs accepts ids as separate arguments or comma separated.
func parseTokenIDs(args []string) ([]int, error) {
	var ids []int
	for _, arg := range args {
		for _, field := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' }) {
			id, err := strconv.Atoi(field)
			if err != nil || id < 0 {
				return nil, fmt.Errorf("invalid token id %q", field)
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no token ids given")
	}
	return ids, nil
}

func writeTokens(w io.Writer, tok *tokenizer.TrieTokenizer, ids []int, verbose bool) {
	if !verbose {
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = strconv.Itoa(id)
		}
		_, _ = fmt.Fprintln(w, strings.Join(parts, " "))
		return
	}
	for _, id := range ids {
		b, _ := tok.TokenBytes(id)
		_, _ = fmt.Fprintf(w, "%6d  %q\n", id, b)
	}
}
