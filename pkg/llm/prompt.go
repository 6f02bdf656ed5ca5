package llm

// Attachment is inline binary content, such as an image, sent with a prompt.
type Attachment struct {
	MIMEType string
	Data     []byte
}

// Prompt is a one-shot generation request. Unlike a conversation turn it
// carries no history; everything the model needs is in the prompt itself.
type Prompt struct {
	// Model and SystemInstruction replace the configured ones when set
	Model             string
	SystemInstruction string

	Text        string
	Attachments []Attachment

	// Overrides for the configured generation settings. Nil or zero keeps
	// the configured value.
	Temperature     *float32
	MaxOutputTokens int32
}
