package servecmder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatline/cmd/chatline/storepath"
	"github.com/papercomputeco/chatline/pkg/config"
	"github.com/papercomputeco/chatline/pkg/gemini"
	"github.com/papercomputeco/chatline/pkg/llm"
	"github.com/papercomputeco/chatline/pkg/logger"
	"github.com/papercomputeco/chatline/pkg/merkle"
	"github.com/papercomputeco/chatline/pkg/session"
	"github.com/papercomputeco/chatline/server"
)

const serveLongDesc string = `Serve Gemini chat sessions over HTTP.

Each client creates its own session and gets its own conversation.
Sessions idle for longer than server.session_ttl are dropped.
Transcripts are recorded to the SQLite database given by --db (or
store.db_path) and kept in memory otherwise.

Examples:
  chatline serve
  chatline serve --listen :9000 --db ~/.chatline/chatline.db`

const serveShortDesc string = "Serve chat sessions over HTTP"

type serveCommander struct {
	configPath string
	listenAddr string
	dbPath     string
	debug      bool
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to config file (default ~/.chatline/config.toml)")
	cmd.Flags().StringVarP(&cmder.listenAddr, "listen", "l", "", "Address to listen on (overrides server.listen)")
	cmd.Flags().StringVar(&cmder.dbPath, "db", "", "Path to SQLite transcript database (overrides store.db_path)")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	log := logger.NewLogger(c.debug)
	defer log.Sync()

	log.Info("chatline server starting",
		zap.String("listen", cfg.Server.ListenAddr),
		zap.String("model", cfg.Gemini.Model),
		zap.String("db", cfg.Store.DBPath),
		zap.Bool("debug", c.debug),
	)

	client, err := gemini.New(ctx, cfg.Gemini, cfg.APIKey, log)
	if err != nil {
		return fmt.Errorf("could not create Gemini client: %w", err)
	}

	storer, err := openStore(cfg.Store.DBPath)
	if err != nil {
		return err
	}
	defer storer.Close()

	sessions := session.NewManager(client, storer, cfg.Server.SessionTTL, log)
	srv := server.New(server.Config{
		ListenAddr: cfg.Server.ListenAddr,
		SessionTTL: cfg.Server.SessionTTL,
	}, sessions, storer, log, server.WithExams(client))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

// loadConfig reads the config and applies flag overrides. A missing API key
// stops the server before it listens.
func (c *serveCommander) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}

	if c.listenAddr != "" {
		cfg.Server.ListenAddr = c.listenAddr
	}
	if c.dbPath != "" {
		cfg.Store.DBPath = c.dbPath
	}

	if err := cfg.Validate(); err != nil {
		if errors.Is(err, llm.ErrMissingCredential) {
			return nil, fmt.Errorf("%w: set %s (or %s)", err, config.APIKeyEnv, config.FallbackAPIKeyEnv)
		}
		return nil, err
	}

	cfg.Store.DBPath, err = storepath.Expand(cfg.Store.DBPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(dbPath string) (merkle.Storer, error) {
	if dbPath == "" {
		return merkle.NewMemoryStorer(), nil
	}

	storer, err := merkle.NewSQLiteStorer(dbPath)
	if err != nil {
		return nil, fmt.Errorf("could not open transcript database %s: %w", dbPath, err)
	}
	return storer, nil
}
