package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the strand configuration file (~/.config/strand/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	Vocab  string `yaml:"vocab"`
	Prompt string `yaml:"prompt"`

	// Control token overrides
	EOSToken       *int64 `yaml:"eos_token"`
	EOLToken       *int64 `yaml:"eol_token"`
	DoubleEOLToken *int64 `yaml:"double_eol_token"`

	// Toy model
	Hidden    *int64 `yaml:"hidden"`
	ModelSeed *int64 `yaml:"model_seed"`

	// Sampling defaults
	Temperature      *float64 `yaml:"temperature"`
	TopP             *float64 `yaml:"top_p"`
	PresencePenalty  *float64 `yaml:"presence_penalty"`
	FrequencyPenalty *float64 `yaml:"frequency_penalty"`
	MaxTokens        *int64   `yaml:"max_tokens"`
	Seed             *int64   `yaml:"seed"`

	// Session
	StateFile   string `yaml:"state_file"`
	Compression string `yaml:"compression"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	if configFile != "" {
		return configFile
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "strand", "config.yaml")
}

// applyModelConfig applies config file defaults to the model and sampling
// flags that were not explicitly set.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.Vocab != "" && !c.IsSet("vocab") {
		vocabPath = cfg.Vocab
	}
	setInt := func(dst *int64, v *int64, names ...string) {
		if v == nil {
			return
		}
		for _, n := range names {
			if c.IsSet(n) {
				return
			}
		}
		*dst = *v
	}
	setFloat := func(dst *float64, v *float64, names ...string) {
		if v == nil {
			return
		}
		for _, n := range names {
			if c.IsSet(n) {
				return
			}
		}
		*dst = *v
	}
	setInt(&eosToken, cfg.EOSToken, "eos-token")
	setInt(&eolToken, cfg.EOLToken, "eol-token")
	setInt(&eol2Token, cfg.DoubleEOLToken, "double-eol-token")
	setInt(&hiddenSize, cfg.Hidden, "hidden")
	setInt(&modelSeed, cfg.ModelSeed, "model-seed")
	setInt(&sampleSeed, cfg.Seed, "seed")
	setFloat(&temperature, cfg.Temperature, "temp", "temperature", "t")
	setFloat(&topP, cfg.TopP, "top-p", "top_p")
	setFloat(&presence, cfg.PresencePenalty, "presence-penalty")
	setFloat(&frequency, cfg.FrequencyPenalty, "frequency-penalty")
	setInt(&maxTokens, cfg.MaxTokens, "max-tokens", "n")
}

// applyChatConfig applies config file defaults to chat command variables.
func applyChatConfig(c *cli.Command, cfg Config, prompt, stateFile, compression *string) {
	if cfg.Prompt != "" && !c.IsSet("prompt") {
		*prompt = cfg.Prompt
	}
	if cfg.StateFile != "" && !c.IsSet("state-file") {
		*stateFile = cfg.StateFile
	}
	if cfg.Compression != "" && !c.IsSet("compression") {
		*compression = cfg.Compression
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// LoadConfig reads the config file. A missing file yields a zero Config;
// a file that exists but does not parse is an error.
func LoadConfig() (Config, error) {
	path := configPath()
	if path == "" {
		return Config{}, nil
	}
	return loadConfigFile(path)
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
