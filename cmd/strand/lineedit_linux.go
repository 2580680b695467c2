//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sys/unix"
)

// readRaw puts the terminal in non-canonical mode for the duration of one
// line and interprets the usual emacs-style editing keys.
func (e *lineEditor) readRaw(ctx context.Context, prompt string) (string, error) {
	fd := int(e.in.Fd())
	oldState, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return "", err
	}
	raw := *oldState
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return "", err
	}
	defer func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, oldState)
	}()

	_, _ = fmt.Fprint(e.out, prompt)
	var (
		line   lineBuffer
		hist   = newHistoryCursor(e.history)
		esc    int // 0 none, 1 after ESC, 2 inside CSI
		csi    strings.Builder
		buf    [16]byte
		redraw = func() { line.render(e.out, prompt) }
	)

	for {
		if err := waitReadable(ctx, fd); err != nil {
			_, _ = fmt.Fprint(e.out, "\r\n")
			return "", err
		}
		n, err := e.in.Read(buf[:])
		if err != nil {
			return "", err
		}
		for _, b := range buf[:n] {
			switch esc {
			case 1:
				esc = 0
				switch b {
				case '[':
					esc = 2
					csi.Reset()
				case 'b', 'B':
					line.wordLeft()
					redraw()
				case 'f', 'F':
					line.wordRight()
					redraw()
				case 127:
					line.deleteWordBack()
					redraw()
				}
				continue
			case 2:
				csi.WriteByte(b)
				if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '~' {
					esc = 0
					if applyCSI(csi.String(), &line, hist) {
						redraw()
					}
				}
				continue
			}

			switch b {
			case 27:
				esc = 1
			case '\r', '\n':
				_, _ = fmt.Fprint(e.out, "\r\n")
				return line.String(), nil
			case 3: // Ctrl+C
				_, _ = fmt.Fprint(e.out, "^C\r\n")
				return "", io.EOF
			case 4: // Ctrl+D on an empty line
				if len(line.buf) == 0 {
					_, _ = fmt.Fprint(e.out, "\r\n")
					return "", io.EOF
				}
			case 127, 8:
				line.backspace()
				redraw()
			case 1: // Ctrl+A
				line.home()
				redraw()
			case 5: // Ctrl+E
				line.end()
				redraw()
			case 23: // Ctrl+W
				line.deleteWordBack()
				redraw()
			default:
				if b >= 32 {
					line.insert(b)
					redraw()
				}
			}
		}
	}
}

// applyCSI handles one control sequence and reports whether the line
// changed.
func applyCSI(seq string, line *lineBuffer, hist *historyCursor) bool {
	switch seq {
	case "A":
		s, ok := hist.prev(line.String())
		if ok {
			line.set(s)
		}
		return ok
	case "B":
		s, ok := hist.next()
		if ok {
			line.set(s)
		}
		return ok
	case "D":
		line.left()
	case "C":
		line.right()
	case "H":
		line.home()
	case "F":
		line.end()
	case "3~":
		line.deleteAtCursor()
	case "1;5D", "5D":
		line.wordLeft()
	case "1;5C", "5C":
		line.wordRight()
	case "3;5~":
		line.deleteWordForward()
	default:
		return false
	}
	return true
}

// pollInterval bounds how long a cancelled context goes unnoticed while the
// terminal is idle.
const pollInterval = 100 // ms

// waitReadable blocks until fd has input or ctx is done. The read itself
// cannot be interrupted, so the wait polls instead. SIGINT with ISIG set
// interrupts the poll, and the signal handler cancels ctx.
func waitReadable(ctx context.Context, fd int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.Poll(fds, pollInterval)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
	}
}
