package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strand/internal/chat"
	"github.com/samcharles93/strand/internal/inference"
	"github.com/samcharles93/strand/internal/logger"
	"github.com/samcharles93/strand/internal/session"
)

const chatHelp = `Commands:
  say something        chat with the bot (history is kept)
  +                    get another reply to your last message
  +reset               reset the chat
  +gen YOUR PROMPT     free generation from a raw prompt
  +i YOUR INSTRUCT     free generation from an instruction
  +qq YOUR QUESTION    free generation from a bare question
  +qa YOUR QUESTION    one-off question against the start prompt
  ++                   retry the last free generation
  +++                  continue the last free generation
Add -temp=X or -top_p=Y anywhere in a line to override sampling for it.
`

func chatCmd() *cli.Command {
	var (
		promptRef   string
		stateFile   string
		compression string
	)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive chat with free generation commands",
		Flags: append(append(commonModelFlags(), samplingFlags(chat.MaxReplyTokens)...),
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "prompt file or built-in prompt name (" + strings.Join(chat.BuiltinPrompts(), ", ") + ")",
				Sources:     cli.EnvVars(envStrandPrompt),
				Destination: &promptRef,
			},
			&cli.StringFlag{
				Name:        "state-file",
				Usage:       "session snapshot to restore on start and save on exit",
				Destination: &stateFile,
			},
			&cli.StringFlag{
				Name:        "compression",
				Usage:       "snapshot compression (zstd, lz4, none)",
				Value:       "zstd",
				Destination: &compression,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyChatConfig(cmd, loadedConfig, &promptRef, &stateFile, &compression)

			eng, err := loadEngine(ctx, cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			prompt, err := chat.LoadPrompt(resolvePromptRef(promptRef))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			comp, err := session.ParseCompression(compression)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			defaults := inference.ResolveRequest(inference.RequestOptions{}, samplingDefaults())
			if err := defaults.Sampling.Validate(); err != nil {
				return cli.Exit(err.Error(), 1)
			}

			ids := snapshotIdentity{vocab: eng.vocab.Fingerprint(), model: eng.model.Fingerprint()}
			store, err := restoreStore(stateFile, ids, log)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			conv, err := chat.NewConversation(eng.gen, store, chat.Options{
				Prompt:   prompt,
				Defaults: defaults,
				Logger:   log,
			})
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if err := conv.Init(ctx); err != nil {
				return cli.Exit(fmt.Sprintf("process prompt: %v", err), 1)
			}

			save := func() error {
				if stateFile == "" {
					return nil
				}
				err := writeFileAtomic(stateFile, func(f *os.File) error {
					return store.Save(f, session.SaveOptions{Compression: comp, Vocabulary: ids.vocab, Model: ids.model})
				})
				if err != nil {
					return fmt.Errorf("save session: %w", err)
				}
				log.Info("session saved", "path", stateFile, "threads", len(store.Names()))
				return nil
			}
			if err := save(); err != nil {
				return cli.Exit(err.Error(), 1)
			}

			fmt.Print(chatHelp)
			fmt.Println()
			loopErr := chatLoop(ctx, conv, newLineEditor(os.Stdin, os.Stdout), os.Stdout)
			if err := save(); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if loopErr != nil {
				return cli.Exit(loopErr.Error(), 1)
			}
			return nil
		},
	}
}

// snapshotIdentity is what a state file must have been built with to be
// reused.
type snapshotIdentity struct {
	vocab [32]byte
	model [32]byte
}

// restoreStore loads the snapshot at path, or returns an empty store when
// there is none yet. A snapshot from another vocabulary is an error; one
// from other model weights is discarded, since its states cannot be reused.
func restoreStore(path string, ids snapshotIdentity, log logger.Logger) (*session.Store, error) {
	f, ok, err := openStateFile(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return session.NewStore(log), nil
	}
	defer func() { _ = f.Close() }()

	store, err := session.Load(f, session.LoadOptions{Vocabulary: ids.vocab, Model: ids.model, Logger: log})
	if errors.Is(err, session.ErrModelMismatch) {
		log.Warn("state file was built with different model weights, starting fresh", "path", path)
		return session.NewStore(log), nil
	}
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", path, err)
	}
	log.Info("session restored", "path", path, "threads", store.Names())
	return store, nil
}

type lineReader interface {
	ReadLine(ctx context.Context, prompt string) (string, error)
}

// chatLoop reads commands until end of input or cancellation. Errors that
// leave the store usable are printed and the loop carries on.
func chatLoop(ctx context.Context, conv *chat.Conversation, in lineReader, out io.Writer) error {
	p := conv.Prompt()
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := in.ReadLine(ctx, p.User+p.Separator+" ")
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}

		cmd, err := chat.ParseCommand(line)
		if errors.Is(err, chat.ErrBadOption) {
			_, _ = fmt.Fprintf(out, "%v\n", err)
			continue
		}
		if err != nil {
			return err
		}
		if cmd.Kind == chat.KindMessage && cmd.Text == "" {
			_, _ = fmt.Fprintln(out, "Error: please say something")
			continue
		}

		switch cmd.Kind {
		case chat.KindMessage, chat.KindChatRetry:
			_, _ = fmt.Fprint(out, p.Assistant+p.Separator)
		case chat.KindReset:
		default:
			_, _ = fmt.Fprintln(out)
		}

		reply, err := conv.Handle(ctx, cmd, func(s string) { _, _ = fmt.Fprint(out, s) })
		switch {
		case errors.Is(err, session.ErrThreadNotFound):
			_, _ = fmt.Fprintf(out, "\nNothing to %s yet.\n", cmd.Kind)
			continue
		case errors.Is(err, context.Canceled):
			_, _ = fmt.Fprintln(out)
			return nil
		case err != nil:
			return err
		}

		if reply.Notice != "" {
			_, _ = fmt.Fprintln(out, reply.Notice)
			continue
		}
		if !strings.HasSuffix(reply.Result.Text, "\n") {
			_, _ = fmt.Fprintln(out)
		}
		if cmd.Kind != chat.KindMessage && cmd.Kind != chat.KindChatRetry {
			_, _ = fmt.Fprintln(out)
		}
	}
}
