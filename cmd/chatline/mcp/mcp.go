package mcpcmder

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatline/cmd/chatline/storepath"
	"github.com/papercomputeco/chatline/pkg/config"
	"github.com/papercomputeco/chatline/pkg/conversation"
	"github.com/papercomputeco/chatline/pkg/gemini"
	"github.com/papercomputeco/chatline/pkg/llm"
	"github.com/papercomputeco/chatline/pkg/logger"
	"github.com/papercomputeco/chatline/pkg/mcpserver"
	"github.com/papercomputeco/chatline/pkg/merkle"
)

const mcpLongDesc string = `Serve a Gemini conversation to an MCP client over stdio.

The client gets two tools: send_message, which sends a message with
the whole conversation so far, and get_history. The conversation lives
as long as the connection. Logs go to the configured log file because
stdout carries the protocol.

Example client configuration:
  {"command": "chatline", "args": ["mcp", "--db", "/home/me/.chatline/chatline.db"]}

A leading ~ in --db or store.db_path is expanded to the home directory.`

const mcpShortDesc string = "Serve a conversation over MCP (stdio)"

// Version is reported to MCP clients.
var Version = "dev"

type mcpCommander struct {
	configPath string
	dbPath     string
	debug      bool
}

func NewMCPCmd() *cobra.Command {
	cmder := &mcpCommander{}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: mcpShortDesc,
		Long:  mcpLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to config file (default ~/.chatline/config.toml)")
	cmd.Flags().StringVar(&cmder.dbPath, "db", "", "Path to SQLite transcript database (overrides store.db_path)")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	return cmd
}

func (c *mcpCommander) run(ctx context.Context) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.dbPath != "" {
		cfg.Store.DBPath = c.dbPath
	}

	if err := cfg.Validate(); err != nil {
		if errors.Is(err, llm.ErrMissingCredential) {
			return fmt.Errorf("%w: set %s (or %s)", err, config.APIKeyEnv, config.FallbackAPIKeyEnv)
		}
		return err
	}

	cfg.Store.DBPath, err = storepath.Expand(cfg.Store.DBPath)
	if err != nil {
		return err
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

	opts := []conversation.Option{conversation.WithLogger(log)}
	if cfg.Store.DBPath != "" {
		storer, err := merkle.NewSQLiteStorer(cfg.Store.DBPath)
		if err != nil {
			return fmt.Errorf("could not open transcript database %s: %w", cfg.Store.DBPath, err)
		}
		defer storer.Close()
		opts = append(opts, conversation.WithRecorder(conversation.NewDAGRecorder(storer)))
	}

	log.Info("mcp server starting",
		zap.String("model", cfg.Gemini.Model),
		zap.String("db", cfg.Store.DBPath),
	)

	return mcpserver.New(conversation.New(client, opts...), Version, log).Run(ctx)
}
