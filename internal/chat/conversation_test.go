package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/strand/internal/inference"
	"github.com/samcharles93/strand/internal/logits"
	"github.com/samcharles93/strand/internal/session"
	"github.com/samcharles93/strand/internal/tokenizer"
	"github.com/samcharles93/strand/internal/toy"
)

const (
	idNewline       = int('\n') + 1
	idDoubleNewline = 300
)

var testPrompt = Prompt{
	User:      "User",
	Assistant: "Bot",
	Separator: ":",
	Prompt:    "\nUser: hi\n\nBot: hello\n\n",
}

// newTestConversation wires a byte-level vocabulary (byte b is id b+1, plus
// "\n\n" as id 300) to the toy model.
func newTestConversation(t *testing.T) (*Conversation, *session.Store, *tokenizer.TrieTokenizer) {
	t.Helper()
	entries := make([]tokenizer.Entry, 0, 257)
	for b := range 256 {
		entries = append(entries, tokenizer.Entry{ID: b + 1, Bytes: []byte{byte(b)}})
	}
	entries = append(entries, tokenizer.Entry{ID: idDoubleNewline, Bytes: []byte("\n\n")})
	v, err := tokenizer.NewVocabulary(entries)
	require.NoError(t, err)
	tok, err := tokenizer.NewTrieTokenizer(v)
	require.NoError(t, err)

	gen := &inference.Generator{
		Model:     toy.New(v.Size(), 8, 3),
		Sampler:   logits.NewSampler(11),
		Tokenizer: tok,
		Control:   tokenizer.ResolveControlTokens(v, tokenizer.UnsetControlTokens()),
	}
	defaults := DefaultRequest()
	defaults.MaxTokens = 12

	store := session.NewStore(nil)
	conv, err := NewConversation(gen, store, Options{Prompt: testPrompt, Defaults: defaults})
	require.NoError(t, err)
	require.NoError(t, conv.Init(context.Background()))
	return conv, store, tok
}

func branch(t *testing.T, s *session.Store, name string) *session.Context {
	t.Helper()
	c, err := s.Branch(name)
	require.NoError(t, err)
	return c
}

func encode(t *testing.T, tok *tokenizer.TrieTokenizer, text string) []int {
	t.Helper()
	ids, err := tok.Encode(text)
	require.NoError(t, err)
	return ids
}

func run(t *testing.T, c *Conversation, line string) (Reply, string) {
	t.Helper()
	cmd, err := ParseCommand(line)
	require.NoError(t, err)
	var out strings.Builder
	r, err := c.Handle(context.Background(), cmd, func(s string) { out.WriteString(s) })
	require.NoError(t, err)
	return r, out.String()
}

func TestInitSplitsTrailingDoubleNewline(t *testing.T) {
	_, store, _ := newTestConversation(t)
	initCtx := branch(t, store, session.ThreadChatInit)
	n := len(initCtx.History)
	require.Greater(t, n, 2)
	assert.Equal(t, []int{idNewline, idNewline}, initCtx.History[n-2:])
	assert.Equal(t, initCtx, branch(t, store, session.ThreadChat))
}

func TestInitReusesRestoredStore(t *testing.T) {
	conv, store, _ := newTestConversation(t)
	before := branch(t, store, session.ThreadChatInit)
	store.Delete(session.ThreadChat)

	require.NoError(t, conv.Init(context.Background()))
	assert.Equal(t, before, branch(t, store, session.ThreadChatInit))
	assert.Equal(t, before, branch(t, store, session.ThreadChat))
}

func TestMessageTurn(t *testing.T) {
	conv, store, tok := newTestConversation(t)
	chatBefore := branch(t, store, session.ThreadChat)

	r, streamed := run(t, conv, "how are you?")
	assert.Equal(t, session.ThreadChat, r.Thread)
	assert.Equal(t, r.Result.Text, streamed)

	pre := branch(t, store, session.ThreadChatPre)
	turn := encode(t, tok, "User: how are you?\n\nBot:")
	assert.Equal(t, append(chatBefore.History, turn...), pre.History)
	assert.Less(t, pre.Logits[idNewline], float32(-1e8), "newline suppressed after the user turn")

	chat := branch(t, store, session.ThreadChat)
	assert.Equal(t, append(pre.History, r.Result.Tokens...), chat.History)
}

func TestChatRetryRegeneratesFromChatPre(t *testing.T) {
	conv, store, _ := newTestConversation(t)

	_, err := conv.Handle(context.Background(), Command{Kind: KindChatRetry}, nil)
	assert.ErrorIs(t, err, session.ErrThreadNotFound)

	run(t, conv, "tell me more")
	pre := branch(t, store, session.ThreadChatPre)

	r, _ := run(t, conv, "+")
	chat := branch(t, store, session.ThreadChat)
	assert.Equal(t, append(pre.History, r.Result.Tokens...), chat.History)
	assert.Equal(t, pre, branch(t, store, session.ThreadChatPre), "chat_pre is untouched by a retry")
}

func TestResetRestoresInit(t *testing.T) {
	conv, store, _ := newTestConversation(t)
	run(t, conv, "first message")
	require.NotEqual(t, branch(t, store, session.ThreadChatInit), branch(t, store, session.ThreadChat))

	r, _ := run(t, conv, "+reset")
	assert.Equal(t, "Chat reset.", r.Notice)
	assert.Equal(t, branch(t, store, session.ThreadChatInit), branch(t, store, session.ThreadChat))
}

func TestFreeGenerationsStartEmpty(t *testing.T) {
	conv, store, tok := newTestConversation(t)
	cases := map[string]string{
		"+gen It was a dark night": "\nIt was a dark night",
		"+qq what is rust?":        "\nQ: what is rust?\nA:",
		"+i list three colours":    strings.Replace(instructionTemplate, "%s", "list three colours", 1),
	}
	for line, prompt := range cases {
		r, _ := run(t, conv, line)
		assert.Equal(t, session.ThreadGen1, r.Thread, line)

		gen0 := branch(t, store, session.ThreadGen0)
		assert.Equal(t, encode(t, tok, prompt), gen0.History, line)

		gen1 := branch(t, store, session.ThreadGen1)
		assert.Equal(t, gen0.History, gen1.History[:len(gen0.History)], line)
	}
}

func TestChatQuestionBranchesFromInit(t *testing.T) {
	conv, store, tok := newTestConversation(t)
	run(t, conv, "unrelated chatter")
	chatBefore := branch(t, store, session.ThreadChat)

	run(t, conv, "+qa capital of France?")
	initCtx := branch(t, store, session.ThreadChatInit)
	gen0 := branch(t, store, session.ThreadGen0)
	want := append(initCtx.History, encode(t, tok, "User: capital of France?\n\nBot:")...)
	assert.Equal(t, want, gen0.History)
	assert.Equal(t, chatBefore, branch(t, store, session.ThreadChat), "chat thread untouched")
}

func TestGenContinueAndRetry(t *testing.T) {
	conv, store, _ := newTestConversation(t)

	for _, line := range []string{"++", "+++"} {
		cmd, err := ParseCommand(line)
		require.NoError(t, err)
		_, err = conv.Handle(context.Background(), cmd, nil)
		assert.ErrorIs(t, err, session.ErrThreadNotFound, line)
	}

	run(t, conv, "+gen The ship")
	gen0 := branch(t, store, session.ThreadGen0)

	run(t, conv, "++")
	assert.Equal(t, gen0, branch(t, store, session.ThreadGen0), "retry keeps gen_0")
	retried := branch(t, store, session.ThreadGen1)
	assert.Equal(t, gen0.History, retried.History[:len(gen0.History)])

	run(t, conv, "+++")
	assert.Equal(t, retried, branch(t, store, session.ThreadGen0), "continue promotes gen_1 to gen_0")
	cont := branch(t, store, session.ThreadGen1)
	assert.Equal(t, retried.History, cont.History[:len(retried.History)])
}

func TestInlineOverridesReachSampler(t *testing.T) {
	conv, _, _ := newTestConversation(t)
	cmd, err := ParseCommand("hi -temp=0.3 -top_p=0")
	require.NoError(t, err)
	p := conv.params(cmd, inference.NoStop)
	assert.Equal(t, 0.3, p.Sampling.Temperature)
	assert.Equal(t, 0.0, p.Sampling.TopP)
	assert.Equal(t, 12, p.MaxTokens)
	assert.Equal(t, inference.DefaultPresencePenalty, p.Sampling.PresencePenalty)
}

func TestNewConversationRejectsEmptyPrompt(t *testing.T) {
	_, err := NewConversation(&inference.Generator{}, session.NewStore(nil), Options{Prompt: Prompt{User: "U", Assistant: "A"}})
	assert.Error(t, err)
}

func TestInitReprocessesChangedPrompt(t *testing.T) {
	conv, store, tok := newTestConversation(t)
	run(t, conv, "remember me")
	require.True(t, store.Has(session.ThreadChatPre))

	other := testPrompt
	other.Prompt = "\nUser: hey\n\nBot: yo\n\n"
	next, err := NewConversation(conv.gen, store, Options{Prompt: other, Defaults: conv.defaults})
	require.NoError(t, err)
	require.NoError(t, next.Init(context.Background()))

	want := tokenizer.SplitLastEndOfLine(encode(t, tok, other.Prompt), conv.gen.Control)
	initCtx := branch(t, store, session.ThreadChatInit)
	assert.Equal(t, want, initCtx.History)
	assert.Equal(t, initCtx, branch(t, store, session.ThreadChat))
	assert.False(t, store.Has(session.ThreadChatPre), "reply context of the old prompt is dropped")
}

func TestNewConversationRejectsInvalidDefaults(t *testing.T) {
	for name, mutate := range map[string]func(*inference.Request){
		"top_p":       func(r *inference.Request) { r.Sampling.TopP = 1.5 },
		"temperature": func(r *inference.Request) { r.Sampling.Temperature = -1 },
		"max_tokens":  func(r *inference.Request) { r.MaxTokens = -3 },
	} {
		defaults := DefaultRequest()
		mutate(&defaults)
		_, err := NewConversation(&inference.Generator{}, session.NewStore(nil), Options{Prompt: testPrompt, Defaults: defaults})
		assert.ErrorIs(t, err, logits.ErrInvalidParams, name)
	}
}
