package inference

import (
	"errors"
	"strings"
)

// Message is one turn of an OpenAI-style conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PromptNames are the speaker labels used when rendering a transcript.
type PromptNames struct {
	User   string
	Bot    string
	System string // used when no system message is present
}

// ErrNoQuestion means the conversation does not end with a user turn.
var ErrNoQuestion = errors.New("inference: conversation must end with a user message")

// RenderChatPrompt flattens messages into the plain transcript recurrent
// chat models are trained on:
//
//	<system>\n\nUser: hi\n\nBot: hello\n\nUser: more\n\nBot:
//
// The last system message wins over names.System. Turn contents go through
// SanitizeMessage so a turn never contains a blank line.
func RenderChatPrompt(messages []Message, names PromptNames) (string, error) {
	if len(messages) == 0 || messages[len(messages)-1].Role != "user" {
		return "", ErrNoQuestion
	}

	system := names.System
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
		}
	}

	var b strings.Builder
	if system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	for _, m := range messages {
		var who string
		switch m.Role {
		case "user":
			who = names.User
		case "assistant":
			who = names.Bot
		default:
			continue
		}
		b.WriteString(who)
		b.WriteString(": ")
		b.WriteString(SanitizeMessage(m.Content))
		b.WriteString("\n\n")
	}
	b.WriteString(names.Bot)
	b.WriteString(":")
	return b.String(), nil
}

// WrapCompletionPrompt frames a bare prompt as a single user turn.
func WrapCompletionPrompt(prompt string, names PromptNames) string {
	return names.User + ": " + prompt + "\n\n" + names.Bot + ": "
}
