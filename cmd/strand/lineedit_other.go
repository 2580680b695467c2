//go:build !linux

package main

import (
	"context"
	"fmt"
)

// readRaw falls back to plain line reading where raw terminal mode is not
// implemented.
func (e *lineEditor) readRaw(_ context.Context, prompt string) (string, error) {
	_, _ = fmt.Fprint(e.out, prompt)
	return e.readPlain()
}
