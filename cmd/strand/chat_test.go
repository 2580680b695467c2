package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samcharles93/strand/internal/chat"
	"github.com/samcharles93/strand/internal/inference"
	"github.com/samcharles93/strand/internal/logger"
	"github.com/samcharles93/strand/internal/logits"
	"github.com/samcharles93/strand/internal/session"
	"github.com/samcharles93/strand/internal/tokenizer"
	"github.com/samcharles93/strand/internal/toy"
)

type scriptedInput struct {
	lines   []string
	prompts []string
}

func (s *scriptedInput) ReadLine(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func byteGenerator(t *testing.T) *inference.Generator {
	t.Helper()
	entries := make([]tokenizer.Entry, 0, 257)
	for b := range 256 {
		entries = append(entries, tokenizer.Entry{ID: b + 1, Bytes: []byte{byte(b)}})
	}
	entries = append(entries, tokenizer.Entry{ID: 300, Bytes: []byte("\n\n")})
	v, err := tokenizer.NewVocabulary(entries)
	if err != nil {
		t.Fatalf("vocabulary: %v", err)
	}
	tok, err := tokenizer.NewTrieTokenizer(v)
	if err != nil {
		t.Fatalf("tokenizer: %v", err)
	}
	return &inference.Generator{
		Model:     toy.New(v.Size(), 8, 2),
		Sampler:   logits.NewSampler(4),
		Tokenizer: tok,
		Control:   tokenizer.ResolveControlTokens(v, tokenizer.UnsetControlTokens()),
	}
}

func TestChatLoop(t *testing.T) {
	gen := byteGenerator(t)
	prompt, err := chat.LoadPrompt("")
	if err != nil {
		t.Fatal(err)
	}
	req := chat.DefaultRequest()
	req.MaxTokens = 5
	store := session.NewStore(nil)
	conv, err := chat.NewConversation(gen, store, chat.Options{Prompt: prompt, Defaults: req})
	if err != nil {
		t.Fatal(err)
	}
	if err := conv.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	in := &scriptedInput{lines: []string{
		"+",
		"",
		"hi -temp=warm",
		"hello there",
		"+reset",
		"+gen Once",
	}}
	var out bytes.Buffer
	if err := chatLoop(context.Background(), conv, in, &out); err != nil {
		t.Fatalf("chatLoop returned error: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Nothing to + yet.",
		"please say something",
		"invalid inline option",
		"Bot:",
		"Chat reset.",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if len(in.prompts) != 7 {
		t.Fatalf("expected 7 reads (6 lines and EOF), got %d", len(in.prompts))
	}
	if in.prompts[0] != "User: " {
		t.Fatalf("unexpected input prompt %q", in.prompts[0])
	}
	if !store.Has(session.ThreadGen1) {
		t.Fatalf("free generation was not committed")
	}
}

func TestChatLoopStopsOnCancel(t *testing.T) {
	gen := byteGenerator(t)
	prompt, err := chat.LoadPrompt("")
	if err != nil {
		t.Fatal(err)
	}
	conv, err := chat.NewConversation(gen, session.NewStore(nil), chat.Options{Prompt: prompt})
	if err != nil {
		t.Fatal(err)
	}
	if err := conv.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := &scriptedInput{lines: []string{"hello"}}
	if err := chatLoop(ctx, conv, in, io.Discard); err != nil {
		t.Fatalf("cancelled loop should end cleanly, got %v", err)
	}
	if len(in.prompts) != 0 {
		t.Fatalf("no input should be read after cancellation")
	}
}

// interruptedInput cancels the loop while it waits for a line, the way a
// Ctrl+C at an idle prompt does.
type interruptedInput struct{ cancel context.CancelFunc }

func (i interruptedInput) ReadLine(ctx context.Context, _ string) (string, error) {
	i.cancel()
	<-ctx.Done()
	return "", ctx.Err()
}

func TestChatLoopEndsWhenInterruptedWhileWaiting(t *testing.T) {
	prompt, err := chat.LoadPrompt("")
	if err != nil {
		t.Fatal(err)
	}
	conv, err := chat.NewConversation(byteGenerator(t), session.NewStore(nil), chat.Options{Prompt: prompt})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := chatLoop(ctx, conv, interruptedInput{cancel: cancel}, io.Discard); err != nil {
		t.Fatalf("interrupted loop should end cleanly, got %v", err)
	}
}

func TestGenerateCompletionsAreIndependent(t *testing.T) {
	gen := byteGenerator(t)
	p := inference.GenerateParams{
		Sampling:  logits.Params{Temperature: 0, TopP: 1},
		MaxTokens: 6,
	}
	var out bytes.Buffer
	results, err := generateCompletions(context.Background(), gen, "The ship", 3, p, &out, logger.Discard())
	if err != nil {
		t.Fatalf("generateCompletions returned error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Text != results[0].Text {
			t.Fatalf("greedy completions from the same prompt differ: %q vs %q", results[i].Text, results[0].Text)
		}
	}
	for _, header := range []string{"--- completion 1 ---", "--- completion 3 ---"} {
		if !strings.Contains(out.String(), header) {
			t.Fatalf("output missing %q", header)
		}
	}
}

func TestParseTokenIDs(t *testing.T) {
	ids, err := parseTokenIDs([]string{"1,2", "3"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Fatalf("unexpected ids %v", ids)
	}
	for _, bad := range [][]string{nil, {"x"}, {"-4"}} {
		if _, err := parseTokenIDs(bad); err == nil {
			t.Fatalf("expected error for %v", bad)
		}
	}
}

func TestInputText(t *testing.T) {
	if got, _ := inputText("flag", []string{"a"}, strings.NewReader("stdin")); got != "flag" {
		t.Fatalf("flag should win, got %q", got)
	}
	if got, _ := inputText("", []string{"a", "b"}, strings.NewReader("stdin")); got != "a b" {
		t.Fatalf("args, got %q", got)
	}
	if got, _ := inputText("", nil, strings.NewReader("from stdin\n")); got != "from stdin\n" {
		t.Fatalf("stdin, got %q", got)
	}
}

func TestRestoreStoreChecksIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.sts")
	saved := snapshotIdentity{vocab: [32]byte{1}, model: toy.New(16, 4, 1).Fingerprint()}

	store := session.NewStore(nil)
	store.Commit(session.ThreadChatInit, &session.Context{History: []int{1, 2, 3}})
	err := writeFileAtomic(path, func(f *os.File) error {
		return store.Save(f, session.SaveOptions{Vocabulary: saved.vocab, Model: saved.model})
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	restored, err := restoreStore(path, saved, logger.Discard())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !restored.Has(session.ThreadChatInit) {
		t.Fatal("matching state file should be reused")
	}

	reseeded := saved
	reseeded.model = toy.New(16, 4, 2).Fingerprint()
	restored, err = restoreStore(path, reseeded, logger.Discard())
	if err != nil {
		t.Fatalf("restore with other weights: %v", err)
	}
	if len(restored.Names()) != 0 {
		t.Fatalf("state from other weights should be discarded, got %v", restored.Names())
	}

	otherVocab := saved
	otherVocab.vocab = [32]byte{2}
	if _, err := restoreStore(path, otherVocab, logger.Discard()); !errors.Is(err, session.ErrVocabMismatch) {
		t.Fatalf("expected vocabulary mismatch, got %v", err)
	}
}
