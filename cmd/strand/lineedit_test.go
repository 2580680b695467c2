package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"
)

func typed(s string) *lineBuffer {
	l := &lineBuffer{}
	for i := 0; i < len(s); i++ {
		l.insert(s[i])
	}
	return l
}

func TestLineBufferEditing(t *testing.T) {
	l := typed("hello world")
	l.home()
	l.insert('>')
	if got := l.String(); got != ">hello world" {
		t.Fatalf("insert at start: %q", got)
	}

	l.end()
	l.wordLeft()
	if l.cursor != 7 {
		t.Fatalf("wordLeft: cursor %d", l.cursor)
	}
	l.deleteWordForward()
	if got := l.String(); got != ">hello " {
		t.Fatalf("deleteWordForward: %q", got)
	}

	l.deleteWordBack()
	if got := l.String(); got != "" || l.cursor != 0 {
		t.Fatalf("deleteWordBack: %q cursor %d", got, l.cursor)
	}

	l = typed("abc")
	l.left()
	l.backspace()
	if got := l.String(); got != "ac" || l.cursor != 1 {
		t.Fatalf("backspace: %q cursor %d", got, l.cursor)
	}
	l.deleteAtCursor()
	if got := l.String(); got != "a" {
		t.Fatalf("deleteAtCursor: %q", got)
	}
	l.right()
	l.right()
	if l.cursor != 1 {
		t.Fatalf("right past end: cursor %d", l.cursor)
	}
}

func TestLineBufferRender(t *testing.T) {
	l := typed("abc")
	l.left()
	var out bytes.Buffer
	l.render(&out, "> ")
	if got, want := out.String(), "\r> abc\x1b[K\r> ab"; got != want {
		t.Fatalf("render = %q, want %q", got, want)
	}
}

func TestHistoryCursor(t *testing.T) {
	h := newHistoryCursor([]string{"one", "two"})
	if _, ok := h.next(); ok {
		t.Fatalf("next before browsing should do nothing")
	}
	if s, ok := h.prev("draft"); !ok || s != "two" {
		t.Fatalf("prev: %q %v", s, ok)
	}
	if s, ok := h.prev("ignored"); !ok || s != "one" {
		t.Fatalf("prev: %q %v", s, ok)
	}
	if _, ok := h.prev("ignored"); ok {
		t.Fatalf("prev at top should stop")
	}
	if s, ok := h.next(); !ok || s != "two" {
		t.Fatalf("next: %q %v", s, ok)
	}
	if s, ok := h.next(); !ok || s != "draft" {
		t.Fatalf("next past end should restore the draft, got %q", s)
	}
}

func TestLineEditorPlain(t *testing.T) {
	prevTTY := stdinIsTTY
	stdinIsTTY = func() bool { return false }
	defer func() { stdinIsTTY = prevTTY }()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Close() }()
	if _, err := w.WriteString("first\r\nsecond"); err != nil {
		t.Fatal(err)
	}
	_ = w.Close()

	var out bytes.Buffer
	e := newLineEditor(r, &out)
	for _, want := range []string{"first", "second"} {
		got, err := e.ReadLine(context.Background(), "> ")
		if err != nil {
			t.Fatalf("ReadLine: %v", err)
		}
		if got != want {
			t.Fatalf("ReadLine = %q, want %q", got, want)
		}
	}
	if _, err := e.ReadLine(context.Background(), "> "); err != io.EOF {
		t.Fatalf("expected io.EOF at end of input, got %v", err)
	}
	if out.String() != "> > > " {
		t.Fatalf("prompts not written: %q", out.String())
	}
}
