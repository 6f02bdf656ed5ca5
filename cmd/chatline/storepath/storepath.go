// Package storepath resolves which transcript database a command works on.
package storepath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/chatline/pkg/config"
)

// EnvVar overrides the default transcript database location.
const EnvVar = "CHATLINE_DB"

const defaultFile = "chatline.db"

// Resolve returns flagValue when set, then $CHATLINE_DB, then the database in
// chatline's config directory. The default directory is created if needed.
func Resolve(flagValue string) (string, error) {
	if flagValue != "" {
		return Expand(flagValue)
	}

	if env := os.Getenv(EnvVar); env != "" {
		return Expand(env)
	}

	dir := config.DefaultDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, defaultFile), nil
}

// Expand replaces a leading "~" with the user's home directory. Paths set in
// config files or MCP client settings never pass through a shell that would
// do it for us. Other paths are returned unchanged.
func Expand(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not expand %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
