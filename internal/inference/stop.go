package inference

import "strings"

// StopFunc inspects the text generated so far in a turn. When it reports
// stop, end is the length of text to keep.
type StopFunc func(text string) (end int, stop bool)

// StopOnDoubleNewline ends a chat turn once a blank line appears. The line
// breaks themselves are kept.
func StopOnDoubleNewline(text string) (int, bool) {
	i := strings.Index(text, "\n\n")
	if i < 0 {
		return 0, false
	}
	return i + 2, true
}

// StopOnString stops when s appears and cuts the text before it. An empty
// s never matches.
func StopOnString(s string) StopFunc {
	if s == "" {
		return NoStop
	}
	return func(text string) (int, bool) {
		i := strings.Index(text, s)
		if i < 0 {
			return 0, false
		}
		return i, true
	}
}

// StopOnAny stops on the earliest match among stops.
func StopOnAny(stops ...string) StopFunc {
	funcs := make([]StopFunc, 0, len(stops))
	for _, s := range stops {
		if s != "" {
			funcs = append(funcs, StopOnString(s))
		}
	}
	if len(funcs) == 0 {
		return NoStop
	}
	return func(text string) (int, bool) {
		best, found := len(text)+1, false
		for _, f := range funcs {
			if end, ok := f(text); ok && end < best {
				best, found = end, true
			}
		}
		return best, found
	}
}

// NoStop never stops; generation runs to end of text or the token limit.
func NoStop(string) (int, bool) { return 0, false }
