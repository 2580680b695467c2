package chat

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/goccy/go-json"
)

//go:embed prompts/*.json
var promptFS embed.FS

// DefaultPromptName is the built-in prompt used when none is configured.
const DefaultPromptName = "English-QA"

// Prompt is a chat prompt file:
//
//	{"user": "User", "assistant": "Bot", "separator": ":", "prompt": "..."}
//
// The prompt text is fed once at start-up and becomes the chat_init thread.
type Prompt struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
	Separator string `json:"separator"`
	Prompt    string `json:"prompt"`
}

// Validate rejects prompts the chat loop cannot use.
func (p Prompt) Validate() error {
	switch {
	case strings.TrimSpace(p.Prompt) == "":
		return errors.New("chat: prompt must not be empty")
	case p.User == "" || p.Assistant == "":
		return errors.New("chat: prompt must name both user and assistant")
	}
	return nil
}

// Turn renders one user turn and opens the assistant's reply.
func (p Prompt) Turn(msg string) string {
	return fmt.Sprintf("%s%s %s\n\n%s%s", p.User, p.Separator, msg, p.Assistant, p.Separator)
}

// ParsePrompt decodes and validates a prompt file.
func ParsePrompt(data []byte) (Prompt, error) {
	var p Prompt
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("chat: parse prompt: %w", err)
	}
	return p, p.Validate()
}

// LoadPrompt resolves ref as a file path first and then as the name of a
// built-in prompt.
func LoadPrompt(ref string) (Prompt, error) {
	if ref == "" {
		ref = DefaultPromptName
	}
	if data, err := os.ReadFile(ref); err == nil {
		return ParsePrompt(data)
	} else if !errors.Is(err, os.ErrNotExist) {
		return Prompt{}, fmt.Errorf("chat: read prompt: %w", err)
	}

	data, err := promptFS.ReadFile(path.Join("prompts", ref+".json"))
	if err != nil {
		return Prompt{}, fmt.Errorf("chat: unknown prompt %q (built-in: %s)", ref, strings.Join(BuiltinPrompts(), ", "))
	}
	return ParsePrompt(data)
}

// BuiltinPrompts lists the embedded prompt names.
func BuiltinPrompts() []string {
	entries, _ := promptFS.ReadDir("prompts")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	slices.Sort(names)
	return names
}
