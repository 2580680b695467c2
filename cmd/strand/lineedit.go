package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// lineEditor reads chat input. On a terminal it edits in raw mode with
// history; otherwise it reads plain lines.
type lineEditor struct {
	in      *os.File
	out     io.Writer
	reader  *bufio.Reader
	history []string
}

func newLineEditor(in *os.File, out io.Writer) *lineEditor {
	return &lineEditor{in: in, out: out, reader: bufio.NewReader(in)}
}

// ReadLine reads one line. In raw mode it returns ctx.Err() as soon as ctx
// is done, even while waiting for a key.
func (e *lineEditor) ReadLine(ctx context.Context, prompt string) (string, error) {
	if !stdinIsTTY() {
		_, _ = fmt.Fprint(e.out, prompt)
		return e.readPlain()
	}
	line, err := e.readRaw(ctx, prompt)
	if err == nil && strings.TrimSpace(line) != "" {
		e.history = append(e.history, line)
	}
	return line, err
}

// readPlain returns io.EOF only when no input is left at all.
func (e *lineEditor) readPlain() (string, error) {
	s, err := e.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", err
	}
	return trimTrailingNewline(s), nil
}

func trimTrailingNewline(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

// lineBuffer is the editable line and cursor of a raw-mode session.
type lineBuffer struct {
	buf    []byte
	cursor int
}

func isBlank(b byte) bool { return b == ' ' || b == '\t' }

func (l *lineBuffer) String() string { return string(l.buf) }

func (l *lineBuffer) set(s string) {
	l.buf = append(l.buf[:0], s...)
	l.cursor = len(l.buf)
}

func (l *lineBuffer) insert(b byte) {
	l.buf = append(l.buf, 0)
	copy(l.buf[l.cursor+1:], l.buf[l.cursor:])
	l.buf[l.cursor] = b
	l.cursor++
}

func (l *lineBuffer) backspace() {
	if l.cursor == 0 {
		return
	}
	l.buf = append(l.buf[:l.cursor-1], l.buf[l.cursor:]...)
	l.cursor--
}

func (l *lineBuffer) deleteAtCursor() {
	if l.cursor < len(l.buf) {
		l.buf = append(l.buf[:l.cursor], l.buf[l.cursor+1:]...)
	}
}

func (l *lineBuffer) left() {
	if l.cursor > 0 {
		l.cursor--
	}
}

func (l *lineBuffer) right() {
	if l.cursor < len(l.buf) {
		l.cursor++
	}
}

func (l *lineBuffer) home() { l.cursor = 0 }
func (l *lineBuffer) end()  { l.cursor = len(l.buf) }

// wordStart is the index of the start of the word before the cursor.
func (l *lineBuffer) wordStart() int {
	i := l.cursor
	for i > 0 && isBlank(l.buf[i-1]) {
		i--
	}
	for i > 0 && !isBlank(l.buf[i-1]) {
		i--
	}
	return i
}

// wordEnd is the index just past the word after the cursor.
func (l *lineBuffer) wordEnd() int {
	i := l.cursor
	for i < len(l.buf) && isBlank(l.buf[i]) {
		i++
	}
	for i < len(l.buf) && !isBlank(l.buf[i]) {
		i++
	}
	return i
}

func (l *lineBuffer) wordLeft()  { l.cursor = l.wordStart() }
func (l *lineBuffer) wordRight() { l.cursor = l.wordEnd() }

func (l *lineBuffer) deleteWordBack() {
	start := l.wordStart()
	l.buf = append(l.buf[:start], l.buf[l.cursor:]...)
	l.cursor = start
}

func (l *lineBuffer) deleteWordForward() {
	end := l.wordEnd()
	l.buf = append(l.buf[:l.cursor], l.buf[end:]...)
}

// render redraws the prompt and line and leaves the terminal cursor at the
// edit position.
func (l *lineBuffer) render(w io.Writer, prompt string) {
	_, _ = fmt.Fprintf(w, "\r%s%s\x1b[K", prompt, l.buf)
	if l.cursor < len(l.buf) {
		_, _ = fmt.Fprintf(w, "\r%s%s", prompt, l.buf[:l.cursor])
	}
}

// historyCursor walks the history with up and down, remembering the line
// that was being typed before browsing started.
type historyCursor struct {
	entries  []string
	pos      int
	browsing bool
	draft    string
}

func newHistoryCursor(entries []string) *historyCursor {
	return &historyCursor{entries: entries, pos: len(entries)}
}

// prev returns the previous entry, or false at the top.
func (h *historyCursor) prev(current string) (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	if !h.browsing {
		h.draft = current
		h.browsing = true
		h.pos = len(h.entries)
	}
	if h.pos == 0 {
		return "", false
	}
	h.pos--
	return h.entries[h.pos], true
}

// next returns the next entry, the saved draft past the end, or false when
// not browsing.
func (h *historyCursor) next() (string, bool) {
	if !h.browsing {
		return "", false
	}
	if h.pos < len(h.entries)-1 {
		h.pos++
		return h.entries[h.pos], true
	}
	h.pos = len(h.entries)
	h.browsing = false
	return h.draft, true
}
