package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strand/internal/inference"
)

var (
	vocabPath   string
	eosToken    int64
	eolToken    int64
	eol2Token   int64
	hiddenSize  int64
	modelSeed   int64
	sampleSeed  int64
	logLevel    string
	logFormat   string
	debug       bool
	configFile  string
	temperature float64
	topP        float64
	presence    float64
	frequency   float64
	maxTokens   int64
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "vocab",
			Aliases:     []string{"v"},
			Usage:       "path to the vocabulary file (<index> <literal> <length> per line)",
			Sources:     cli.EnvVars(envStrandVocab),
			Destination: &vocabPath,
		},
		&cli.Int64Flag{
			Name:        "eos-token",
			Usage:       "end of text token id (-1 = derive from vocabulary)",
			Value:       -1,
			Destination: &eosToken,
		},
		&cli.Int64Flag{
			Name:        "eol-token",
			Usage:       "line break token id (-1 = derive from vocabulary)",
			Value:       -1,
			Destination: &eolToken,
		},
		&cli.Int64Flag{
			Name:        "double-eol-token",
			Usage:       "double line break token id (-1 = derive from vocabulary)",
			Value:       -1,
			Destination: &eol2Token,
		},
		&cli.Int64Flag{
			Name:        "hidden",
			Usage:       "hidden size of the built-in toy model",
			Value:       64,
			Destination: &hiddenSize,
		},
		&cli.Int64Flag{
			Name:        "model-seed",
			Usage:       "weight seed of the built-in toy model",
			Value:       1,
			Destination: &modelSeed,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampling RNG seed (-1 = random)",
			Value:       -1,
			Destination: &sampleSeed,
		},
	}
}

func samplingFlags(defaultMaxTokens int64) []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:        "temp",
			Aliases:     []string{"temperature", "t"},
			Usage:       "sampling temperature (0 = greedy)",
			Value:       inference.DefaultTemperature,
			Destination: &temperature,
		},
		&cli.Float64Flag{
			Name:        "top-p",
			Aliases:     []string{"top_p"},
			Usage:       "nucleus sampling threshold (0 or 1 = disabled)",
			Value:       inference.DefaultTopP,
			Destination: &topP,
		},
		&cli.Float64Flag{
			Name:        "presence-penalty",
			Usage:       "penalty for any token already generated",
			Value:       inference.DefaultPresencePenalty,
			Destination: &presence,
		},
		&cli.Float64Flag{
			Name:        "frequency-penalty",
			Usage:       "penalty per occurrence of a generated token",
			Value:       inference.DefaultFrequencyPenalty,
			Destination: &frequency,
		},
		&cli.Int64Flag{
			Name:        "max-tokens",
			Aliases:     []string{"n"},
			Usage:       "maximum tokens per reply or completion",
			Value:       defaultMaxTokens,
			Destination: &maxTokens,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, plain, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "config file (default ~/.config/strand/config.yaml)",
			Destination: &configFile,
		},
	}
}

// samplingDefaults returns the sampling flags as generation defaults.
func samplingDefaults() inference.Defaults {
	mt := int(maxTokens)
	return inference.Defaults{
		Temperature:      &temperature,
		TopP:             &topP,
		PresencePenalty:  &presence,
		FrequencyPenalty: &frequency,
		MaxTokens:        &mt,
	}
}
