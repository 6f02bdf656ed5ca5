package server

import "time"

// Config is the chat server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	ListenAddr string

	// SessionTTL is how long an idle session survives. Zero disables expiry.
	SessionTTL time.Duration
}
