//go:build linux

package main

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestWaitReadableStopsOnCancel(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Close() }()
	defer func() { _ = w.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- waitReadable(ctx, int(r.Fd())) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("waitReadable = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waitReadable did not return after cancel with no input")
	}
}

func TestWaitReadableReturnsOnInput(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Close() }()
	defer func() { _ = w.Close() }()

	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := waitReadable(context.Background(), int(r.Fd())); err != nil {
		t.Fatalf("waitReadable: %v", err)
	}
}
