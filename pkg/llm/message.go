package llm

// Message is a single entry of the replay payload sent to the chat API.
type Message struct {
	Role  Role     `json:"role"`  // "user" or "model"
	Parts []string `json:"parts"` // Text parts, one per turn in practice
}

// Replay converts turns into the history payload for the chat API,
// preserving their order.
func Replay(turns []Turn) []Message {
	msgs := make([]Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, t.Message())
	}
	return msgs
}
