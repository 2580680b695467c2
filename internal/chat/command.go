package chat

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrBadOption is returned for an unparsable inline option such as
// "-temp=hot".
var ErrBadOption = errors.New("chat: invalid inline option")

// Kind identifies what a line of user input asks for.
type Kind int

const (
	KindMessage      Kind = iota // plain chat message
	KindReset                    // +reset
	KindChatRetry                // +   : new reply to the last message
	KindGenerate                 // +gen: free generation from a raw prompt
	KindInstruct                 // +i  : free generation from an instruction
	KindQuestion                 // +qq : free generation from a bare Q/A prompt
	KindChatQuestion             // +qa : one-off question against the init prompt
	KindGenContinue              // +++ : continue the last free generation
	KindGenRetry                 // ++  : retry the last free generation
)

var kindNames = [...]string{
	KindMessage:      "message",
	KindReset:        "+reset",
	KindChatRetry:    "+",
	KindGenerate:     "+gen",
	KindInstruct:     "+i",
	KindQuestion:     "+qq",
	KindChatQuestion: "+qa",
	KindGenContinue:  "+++",
	KindGenRetry:     "++",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Command is one parsed line of chat input.
type Command struct {
	Kind Kind
	// Text is the message, prompt, instruction or question. Empty for the
	// argument-less commands.
	Text string
	// Inline sampling overrides, already clamped. Nil when absent.
	Temperature *float64
	TopP        *float64
}

// Inline option limits.
const (
	MinTemperature = 0.2
	MaxTemperature = 5.0
)

// prefixed commands take an argument after a single space.
var prefixed = []struct {
	prefix string
	kind   Kind
}{
	{"+gen ", KindGenerate},
	{"+qq ", KindQuestion},
	{"+qa ", KindChatQuestion},
	{"+i ", KindInstruct},
}

// ParseCommand parses a line of chat input. Literal "\n" sequences become
// line breaks; "-temp=X" and "-top_p=Y" anywhere in the line are removed
// and returned as overrides. Command words are case-insensitive.
func ParseCommand(line string) (Command, error) {
	var cmd Command
	msg := strings.TrimSpace(strings.ReplaceAll(line, `\n`, "\n"))

	msg, temp, err := extractOption(msg, "-temp=")
	if err != nil {
		return cmd, err
	}
	if temp != nil {
		v := min(max(*temp, MinTemperature), MaxTemperature)
		cmd.Temperature = &v
	}

	msg, topP, err := extractOption(msg, "-top_p=")
	if err != nil {
		return cmd, err
	}
	if topP != nil {
		v := min(max(*topP, 0), 1)
		cmd.TopP = &v
	}

	msg = strings.TrimSpace(msg)
	lower := strings.ToLower(msg)

	switch lower {
	case "+reset":
		cmd.Kind = KindReset
		return cmd, nil
	case "+++":
		cmd.Kind = KindGenContinue
		return cmd, nil
	case "++":
		cmd.Kind = KindGenRetry
		return cmd, nil
	case "+":
		cmd.Kind = KindChatRetry
		return cmd, nil
	}
	for _, p := range prefixed {
		if strings.HasPrefix(lower, p.prefix) {
			cmd.Kind = p.kind
			cmd.Text = strings.TrimSpace(msg[len(p.prefix):])
			return cmd, nil
		}
	}

	cmd.Kind = KindMessage
	cmd.Text = msg
	return cmd, nil
}

// extractOption finds name followed by a number, removes it from msg and
// returns the value. The number runs to the next whitespace.
func extractOption(msg, name string) (string, *float64, error) {
	i := strings.Index(msg, name)
	if i < 0 {
		return msg, nil, nil
	}
	rest := msg[i+len(name):]
	raw := rest
	if j := strings.IndexAny(rest, " \t\n"); j >= 0 {
		raw = rest[:j]
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) {
		return msg, nil, fmt.Errorf("%w: %s%s", ErrBadOption, name, raw)
	}
	return msg[:i] + msg[i+len(name)+len(raw):], &v, nil
}
