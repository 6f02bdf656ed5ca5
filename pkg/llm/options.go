package llm

// Options contains the model selection and inference parameters passed to the
// chat API on every call. They are inert to the conversation logic.
type Options struct {
	// Model name (e.g., "gemini-1.5-flash")
	Model string `toml:"model" json:"model"`

	// Sampling parameters
	Temperature float32 `toml:"temperature" json:"temperature"` // Creativity (0.0-2.0)
	TopP        float32 `toml:"top_p" json:"top_p"`             // Nucleus sampling threshold
	TopK        int32   `toml:"top_k" json:"top_k"`             // Top-k sampling

	// Length parameters
	MaxOutputTokens int32 `toml:"max_output_tokens" json:"max_output_tokens"`

	// Optional system prompt sent with every call
	SystemInstruction string `toml:"system_instruction" json:"system_instruction,omitempty"`
}

// DefaultOptions returns the generation settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Model:           "gemini-1.5-flash",
		Temperature:     0.7,
		TopP:            0.95,
		TopK:            64,
		MaxOutputTokens: 8192,
	}
}
