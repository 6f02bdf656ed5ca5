// Package config loads chatline's configuration once at startup.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/chatline/pkg/llm"
)

const (
	// APIKeyEnv is the preferred variable holding the Gemini API key.
	APIKeyEnv = "GEMINI_API_KEY"

	// FallbackAPIKeyEnv is consulted when APIKeyEnv is unset.
	FallbackAPIKeyEnv = "GOOGLE_API_KEY"

	dirName  = ".chatline"
	fileName = "config.toml"
)

// Config is the chatline configuration.
type Config struct {
	// APIKey is the Gemini credential. It is only ever read from the
	// environment, never from the config file.
	APIKey string `toml:"-"`

	Gemini Gemini `toml:"gemini"`
	Server Server `toml:"server"`
	Store  Store  `toml:"store"`

	// LogFile receives logs from the terminal UI.
	LogFile string `toml:"log_file"`
}

// Gemini holds the generation settings and the API endpoint.
type Gemini struct {
	llm.Options

	// BaseURL overrides the API endpoint (e.g., for a proxy). Empty uses the default.
	BaseURL string `toml:"base_url"`
}

// Server is the HTTP server configuration.
type Server struct {
	// Address to listen on (e.g., ":8080")
	ListenAddr string `toml:"listen"`

	// SessionTTL is how long an idle browser session is kept.
	SessionTTL time.Duration `toml:"session_ttl"`
}

// Store configures the transcript store.
type Store struct {
	// DBPath is the path to the SQLite database file. Empty keeps
	// transcripts in memory only.
	DBPath string `toml:"db_path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	dir := DefaultDir()
	return &Config{
		Gemini: Gemini{Options: llm.DefaultOptions()},
		Server: Server{
			ListenAddr: ":8080",
			SessionTTL: 30 * time.Minute,
		},
		LogFile: filepath.Join(dir, "chatline.log"),
	}
}

// DefaultDir is the directory holding chatline's config, logs and database.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return dirName
	}
	return filepath.Join(home, dirName)
}

// DefaultPath is the config file read when none is given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), fileName)
}

// Load reads the config file at path over the defaults and takes the API key
// from the environment. An empty path reads DefaultPath if it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	md, err := toml.DecodeFile(path, cfg)
	switch {
	case err == nil:
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// No config file is fine
	default:
		return nil, fmt.Errorf("could not read config %s: %w", path, err)
	}

	cfg.APIKey = apiKeyFromEnv()
	return cfg, nil
}

func apiKeyFromEnv() string {
	if key := strings.TrimSpace(os.Getenv(APIKeyEnv)); key != "" {
		return key
	}
	return strings.TrimSpace(os.Getenv(FallbackAPIKeyEnv))
}

// Validate checks the configuration before any input is accepted. A missing
// key returns llm.ErrMissingCredential.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return llm.ErrMissingCredential
	}

	g := c.Gemini
	var problems []string
	if strings.TrimSpace(g.Model) == "" {
		problems = append(problems, "gemini.model must be set")
	}
	if g.Temperature < 0 || g.Temperature > 2 {
		problems = append(problems, fmt.Sprintf("gemini.temperature %.2f out of range [0, 2]", g.Temperature))
	}
	if g.TopP < 0 || g.TopP > 1 {
		problems = append(problems, fmt.Sprintf("gemini.top_p %.2f out of range [0, 1]", g.TopP))
	}
	if g.TopK < 0 {
		problems = append(problems, fmt.Sprintf("gemini.top_k %d must not be negative", g.TopK))
	}
	if g.MaxOutputTokens <= 0 {
		problems = append(problems, fmt.Sprintf("gemini.max_output_tokens %d must be positive", g.MaxOutputTokens))
	}
	if c.Server.SessionTTL < 0 {
		problems = append(problems, "server.session_ttl must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
