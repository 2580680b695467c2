package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strand/internal/inference"
	"github.com/samcharles93/strand/internal/logger"
	"github.com/samcharles93/strand/internal/logits"
	"github.com/samcharles93/strand/internal/tokenizer"
	"github.com/samcharles93/strand/internal/toy"
)

// engine is everything a command needs to generate text.
type engine struct {
	vocab *tokenizer.Vocabulary
	tok   *tokenizer.TrieTokenizer
	model *toy.Model
	gen   *inference.Generator
}

// loadVocabulary resolves and parses the vocabulary named by the flags.
func loadVocabulary(ctx context.Context) (*tokenizer.Vocabulary, *tokenizer.TrieTokenizer, error) {
	log := logger.FromContext(ctx)
	path, err := resolveVocabPath(vocabPath)
	if err != nil {
		return nil, nil, err
	}
	start := time.Now()
	v, err := tokenizer.LoadVocabulary(path)
	if err != nil {
		return nil, nil, err
	}
	tok, err := tokenizer.NewTrieTokenizer(v)
	if err != nil {
		return nil, nil, err
	}
	log.Info("vocabulary loaded", "path", path, "tokens", v.Len(), "duration", time.Since(start))
	return v, tok, nil
}

// loadEngine builds the generator. Native model loading is out of scope,
// so the generator evaluates the built-in toy model sized to the vocabulary.
func loadEngine(ctx context.Context, cmd *cli.Command) (*engine, error) {
	applyModelConfig(cmd, loadedConfig)
	log := logger.FromContext(ctx)

	v, tok, err := loadVocabulary(ctx)
	if err != nil {
		return nil, err
	}
	if hiddenSize <= 0 {
		return nil, fmt.Errorf("--hidden must be positive, got %d", hiddenSize)
	}

	control := tokenizer.ResolveControlTokens(v, tokenizer.ControlTokens{
		EndOfText:       int(eosToken),
		EndOfLine:       int(eolToken),
		DoubleEndOfLine: int(eol2Token),
	})
	log.Debug("control tokens",
		"eos", control.EndOfText,
		"eol", control.EndOfLine,
		"double_eol", control.DoubleEndOfLine,
	)

	seed := sampleSeed
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	model := toy.New(v.Size(), int(hiddenSize), modelSeed)
	return &engine{
		vocab: v,
		tok:   tok,
		model: model,
		gen: &inference.Generator{
			Model:     model,
			Sampler:   logits.NewSampler(seed),
			Tokenizer: tok,
			Control:   control,
			Logger:    log,
		},
	}, nil
}
