// Package chat implements the interactive command surface: it parses input
// lines into Commands and maps each one onto store and generator primitives.
package chat

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/samcharles93/strand/internal/inference"
	"github.com/samcharles93/strand/internal/logger"
	"github.com/samcharles93/strand/internal/logits"
	"github.com/samcharles93/strand/internal/session"
	"github.com/samcharles93/strand/internal/tokenizer"
)

const (
	// MaxReplyTokens bounds a single reply or free generation.
	MaxReplyTokens = 250
	// NewlineBias is added to the end of line logit after a user turn so
	// the reply cannot open with a line break.
	NewlineBias = -1e9
)

const instructionTemplate = `
Below is an instruction that describes a task. Write a response that appropriately completes the request.

# Instruction:
%s

# Response:
`

// Options configures a Conversation.
type Options struct {
	Prompt Prompt
	// Defaults holds the sampling parameters and token limit of every turn.
	// Inline overrides replace temperature and top_p per command.
	Defaults inference.Request
	Logger   logger.Logger
}

// DefaultRequest returns the chat defaults.
func DefaultRequest() inference.Request {
	req := inference.ResolveRequest(inference.RequestOptions{}, inference.Defaults{})
	req.MaxTokens = MaxReplyTokens
	return req
}

// Reply describes the outcome of one command.
type Reply struct {
	Kind Kind
	// Thread is the store slot the result was committed to.
	Thread string
	// Notice is a status line for commands that do not generate.
	Notice string
	Result inference.Result
}

// Conversation drives a Generator over a session.Store.
type Conversation struct {
	gen      *inference.Generator
	store    *session.Store
	prompt   Prompt
	defaults inference.Request
	log      logger.Logger
}

type handler func(c *Conversation, ctx context.Context, cmd Command, emit inference.StreamFunc) (Reply, error)

var handlers = map[Kind]handler{
	KindReset:        (*Conversation).reset,
	KindMessage:      (*Conversation).message,
	KindChatRetry:    (*Conversation).chatRetry,
	KindGenerate:     (*Conversation).generate,
	KindInstruct:     (*Conversation).instruct,
	KindQuestion:     (*Conversation).question,
	KindChatQuestion: (*Conversation).chatQuestion,
	KindGenContinue:  (*Conversation).genContinue,
	KindGenRetry:     (*Conversation).genRetry,
}

func NewConversation(gen *inference.Generator, store *session.Store, opts Options) (*Conversation, error) {
	if err := opts.Prompt.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Defaults.Sampling.Validate(); err != nil {
		return nil, fmt.Errorf("chat: default sampling: %w", err)
	}
	if opts.Defaults.MaxTokens < 0 {
		return nil, fmt.Errorf("chat: default sampling: %w: max tokens %d is negative", logits.ErrInvalidParams, opts.Defaults.MaxTokens)
	}
	if opts.Defaults.MaxTokens == 0 {
		opts.Defaults.MaxTokens = MaxReplyTokens
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Conversation{
		gen:      gen,
		store:    store,
		prompt:   opts.Prompt,
		defaults: opts.Defaults,
		log:      log,
	}, nil
}

func (c *Conversation) Prompt() Prompt { return c.prompt }

// Init evaluates the init prompt and commits it as chat_init and chat. A
// store whose chat_init already holds exactly this prompt, for example one
// restored from a snapshot, is reused. A chat_init built from another
// prompt is replaced, and the chat threads derived from it are dropped.
func (c *Conversation) Init(ctx context.Context) error {
	tokens, err := c.encode(c.prompt.Prompt)
	if err != nil {
		return err
	}
	tokens = tokenizer.SplitLastEndOfLine(tokens, c.gen.Control)

	if existing, err := c.store.Branch(session.ThreadChatInit); err == nil {
		if slices.Equal(existing.History, tokens) {
			c.log.Info("reusing processed prompt", "threads", c.store.Names())
			if !c.store.Has(session.ThreadChat) {
				return c.store.Reset()
			}
			return nil
		}
		c.log.Warn("stored prompt differs, processing again",
			"stored_tokens", len(existing.History),
			"tokens", len(tokens),
		)
		c.store.Delete(session.ThreadChat)
		c.store.Delete(session.ThreadChatPre)
	}

	c.log.Info("processing prompt", "tokens", len(tokens))
	start := time.Now()
	wc := &session.Context{}
	if err := c.gen.Feed(ctx, wc, tokens, 0); err != nil {
		return err
	}
	elapsed := time.Since(start)
	msPerToken := 0.0
	if len(tokens) > 0 {
		msPerToken = float64(elapsed.Microseconds()) / 1000 / float64(len(tokens))
	}
	c.log.Info("prompt processed", "duration", elapsed, "ms_per_token", msPerToken)

	c.store.Commit(session.ThreadChatInit, wc)
	c.store.Commit(session.ThreadChat, wc)
	return nil
}

// Handle runs cmd. Generated text is streamed through emit as it becomes
// displayable. session.ErrThreadNotFound means the command needs a thread
// that does not exist yet; the store is unchanged and the caller may carry
// on.
func (c *Conversation) Handle(ctx context.Context, cmd Command, emit inference.StreamFunc) (Reply, error) {
	h, ok := handlers[cmd.Kind]
	if !ok {
		return Reply{}, fmt.Errorf("chat: unsupported command %s", cmd.Kind)
	}
	c.log.Debug("command", "kind", cmd.Kind.String())
	return h(c, ctx, cmd, emit)
}

func (c *Conversation) reset(_ context.Context, cmd Command, _ inference.StreamFunc) (Reply, error) {
	if err := c.store.Reset(); err != nil {
		return Reply{}, err
	}
	return Reply{Kind: cmd.Kind, Thread: session.ThreadChat, Notice: "Chat reset."}, nil
}

func (c *Conversation) message(ctx context.Context, cmd Command, emit inference.StreamFunc) (Reply, error) {
	wc, err := c.store.Branch(session.ThreadChat)
	if err != nil {
		return Reply{}, err
	}
	if err := c.feedText(ctx, wc, c.prompt.Turn(cmd.Text), NewlineBias); err != nil {
		return Reply{}, err
	}
	c.store.Commit(session.ThreadChatPre, wc)
	return c.reply(ctx, wc, cmd, session.ThreadChat, inference.StopOnDoubleNewline, emit)
}

func (c *Conversation) chatRetry(ctx context.Context, cmd Command, emit inference.StreamFunc) (Reply, error) {
	wc, err := c.store.Branch(session.ThreadChatPre)
	if err != nil {
		return Reply{}, err
	}
	return c.reply(ctx, wc, cmd, session.ThreadChat, inference.StopOnDoubleNewline, emit)
}

func (c *Conversation) generate(ctx context.Context, cmd Command, emit inference.StreamFunc) (Reply, error) {
	return c.freeGeneration(ctx, cmd, "\n"+cmd.Text, emit)
}

func (c *Conversation) instruct(ctx context.Context, cmd Command, emit inference.StreamFunc) (Reply, error) {
	return c.freeGeneration(ctx, cmd, fmt.Sprintf(instructionTemplate, cmd.Text), emit)
}

func (c *Conversation) question(ctx context.Context, cmd Command, emit inference.StreamFunc) (Reply, error) {
	return c.freeGeneration(ctx, cmd, "\nQ: "+cmd.Text+"\nA:", emit)
}

func (c *Conversation) chatQuestion(ctx context.Context, cmd Command, emit inference.StreamFunc) (Reply, error) {
	wc, err := c.store.Branch(session.ThreadChatInit)
	if err != nil {
		return Reply{}, err
	}
	if err := c.feedText(ctx, wc, c.prompt.Turn(cmd.Text), 0); err != nil {
		return Reply{}, err
	}
	c.store.Commit(session.ThreadGen0, wc)
	return c.reply(ctx, wc, cmd, session.ThreadGen1, inference.NoStop, emit)
}

func (c *Conversation) genContinue(ctx context.Context, cmd Command, emit inference.StreamFunc) (Reply, error) {
	wc, err := c.store.Branch(session.ThreadGen1)
	if err != nil {
		return Reply{}, err
	}
	c.store.Commit(session.ThreadGen0, wc)
	return c.reply(ctx, wc, cmd, session.ThreadGen1, inference.NoStop, emit)
}

func (c *Conversation) genRetry(ctx context.Context, cmd Command, emit inference.StreamFunc) (Reply, error) {
	wc, err := c.store.Branch(session.ThreadGen0)
	if err != nil {
		return Reply{}, err
	}
	return c.reply(ctx, wc, cmd, session.ThreadGen1, inference.NoStop, emit)
}

// freeGeneration starts from the empty context, so the chat history has no
// influence on the output.
func (c *Conversation) freeGeneration(ctx context.Context, cmd Command, text string, emit inference.StreamFunc) (Reply, error) {
	wc := &session.Context{}
	if err := c.feedText(ctx, wc, text, 0); err != nil {
		return Reply{}, err
	}
	c.store.Commit(session.ThreadGen0, wc)
	return c.reply(ctx, wc, cmd, session.ThreadGen1, inference.NoStop, emit)
}

// reply generates from wc and commits it to thread on success.
func (c *Conversation) reply(ctx context.Context, wc *session.Context, cmd Command, thread string, stop inference.StopFunc, emit inference.StreamFunc) (Reply, error) {
	res, err := c.gen.Generate(ctx, wc, c.params(cmd, stop), emit)
	r := Reply{Kind: cmd.Kind, Thread: thread, Result: res}
	if err != nil {
		return r, err
	}
	c.store.Commit(thread, wc)
	return r, nil
}

func (c *Conversation) params(cmd Command, stop inference.StopFunc) inference.GenerateParams {
	p := inference.GenerateParams{
		Sampling:  c.defaults.Sampling,
		MaxTokens: c.defaults.MaxTokens,
		Stop:      stop,
	}
	if cmd.Temperature != nil {
		p.Sampling.Temperature = *cmd.Temperature
	}
	if cmd.TopP != nil {
		p.Sampling.TopP = *cmd.TopP
	}
	return p
}

func (c *Conversation) feedText(ctx context.Context, wc *session.Context, text string, bias float64) error {
	tokens, err := c.encode(text)
	if err != nil {
		return err
	}
	return c.gen.Feed(ctx, wc, tokens, bias)
}

func (c *Conversation) encode(text string) ([]int, error) {
	tokens, err := c.gen.Tokenizer.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("chat: encode: %w", err)
	}
	return tokens, nil
}
