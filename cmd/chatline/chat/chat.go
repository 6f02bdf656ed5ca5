package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/papercomputeco/chatline/cmd/chatline/storepath"
	"github.com/papercomputeco/chatline/pkg/config"
	"github.com/papercomputeco/chatline/pkg/conversation"
	"github.com/papercomputeco/chatline/pkg/gemini"
	"github.com/papercomputeco/chatline/pkg/llm"
	"github.com/papercomputeco/chatline/pkg/logger"
	"github.com/papercomputeco/chatline/pkg/merkle"
	"github.com/papercomputeco/chatline/pkg/tui"
)

const chatLongDesc string = `Chat with Gemini in the terminal.

Every message is sent with the whole conversation so far, so Gemini
answers in context. Replies are rendered as markdown. Logs go to the
configured log file because the chat owns the screen.

With --db every turn is recorded to a transcript database, and
--resume continues a recorded conversation from its newest turn.

Examples:
  chatline chat
  chatline chat --db ~/.chatline/chatline.db
  chatline chat --db ~/.chatline/chatline.db --resume 3f2a...`

const chatShortDesc string = "Chat with Gemini in the terminal"

// ErrNotATerminal is returned when stdout is not an interactive terminal.
var ErrNotATerminal = errors.New("chat needs an interactive terminal (use 'chatline serve' for HTTP)")

type chatCommander struct {
	configPath string
	dbPath     string
	resume     string
	debug      bool
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to config file (default ~/.chatline/config.toml)")
	cmd.Flags().StringVar(&cmder.dbPath, "db", "", "Path to SQLite transcript database (overrides store.db_path)")
	cmd.Flags().StringVar(&cmder.resume, "resume", "", "Continue the recorded conversation ending at this node hash")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	return cmd
}

func (c *chatCommander) run(ctx context.Context) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		if errors.Is(err, llm.ErrMissingCredential) {
			return fmt.Errorf("%w: set %s (or %s)", err, config.APIKeyEnv, config.FallbackAPIKeyEnv)
		}
		return err
	}

	dbPath := c.dbPath
	if dbPath == "" {
		dbPath = cfg.Store.DBPath
	}
	dbPath, err = storepath.Expand(dbPath)
	if err != nil {
		return err
	}
	if c.resume != "" && dbPath == "" {
		return errors.New("--resume needs a transcript database (--db or store.db_path)")
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return ErrNotATerminal
	}

	log, closeLog, err := logger.NewFileLogger(c.debug, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	defer log.Sync()

	client, err := gemini.New(ctx, cfg.Gemini, cfg.APIKey, log)
	if err != nil {
		return fmt.Errorf("could not create Gemini client: %w", err)
	}

	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		width = 80
	}
	renderer, err := tui.NewGlamourRenderer(width - 2)
	if err != nil {
		return fmt.Errorf("could not create markdown renderer: %w", err)
	}

	conv, closeStore, err := c.conversation(ctx, client, dbPath, log)
	if err != nil {
		return err
	}
	defer closeStore()

	log.Info("chat started",
		zap.String("model", cfg.Gemini.Model),
		zap.String("db", dbPath),
		zap.Int("resumed_turns", conv.Len()),
	)

	return tui.Run(ctx, conv, renderer)
}

// conversation opens the transcript store when one is configured and either
// resumes the requested transcript or starts a fresh recorded conversation.
func (c *chatCommander) conversation(ctx context.Context, chatter conversation.Chatter, dbPath string, log *zap.Logger) (*conversation.Conversation, func() error, error) {
	if dbPath == "" {
		return conversation.New(chatter, conversation.WithLogger(log)), func() error { return nil }, nil
	}

	storer, err := merkle.NewSQLiteStorer(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open transcript database %s: %w", dbPath, err)
	}

	if c.resume == "" {
		conv := conversation.New(chatter,
			conversation.WithLogger(log),
			conversation.WithRecorder(conversation.NewDAGRecorder(storer)),
		)
		return conv, storer.Close, nil
	}

	conv, _, err := conversation.Resume(ctx, storer, c.resume, chatter, conversation.WithLogger(log))
	if err != nil {
		storer.Close()
		return nil, nil, err
	}
	return conv, storer.Close, nil
}
