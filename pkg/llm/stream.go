package llm

// StreamChunk represents a single NDJSON line of a streamed reply.
type StreamChunk struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done"`

	// Set on the final chunk when the exchange failed
	Error string    `json:"error,omitempty"`
	Kind  ErrorKind `json:"kind,omitempty"`
}
