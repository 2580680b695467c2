package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
)

const (
	envStrandVocab  = "STRAND_VOCAB"
	envStrandPrompt = "STRAND_PROMPT"
)

// stdinIsTTY is a small seam for tests.
var stdinIsTTY = isTTY

func resolveVocabPath(flag string) (string, error) {
	if p := strings.TrimSpace(flag); p != "" {
		return filepath.Clean(p), nil
	}
	if p := strings.TrimSpace(os.Getenv(envStrandVocab)); p != "" {
		return filepath.Clean(p), nil
	}
	return "", fmt.Errorf("--vocab is required unless %s is set", envStrandVocab)
}

// resolvePromptRef picks the chat prompt: the flag, then STRAND_PROMPT, then
// the built-in default (empty ref).
func resolvePromptRef(flag string) string {
	if p := strings.TrimSpace(flag); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv(envStrandPrompt))
}

// openStateFile opens an existing session snapshot. A missing file is not
// an error; it reports ok == false.
func openStateFile(path string) (f *os.File, ok bool, err error) {
	if path == "" {
		return nil, false, nil
	}
	f, err = os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return f, true, nil
}

// writeFileAtomic writes through a temporary file in the same directory so a
// crash never leaves a truncated snapshot behind.
func writeFileAtomic(path string, write func(f *os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
