package llm

// SubmitResponse is returned after a successful submission.
type SubmitResponse struct {
	Reply string `json:"reply"` // The model's answer
	Turns int    `json:"turns"` // Conversation length after the exchange
}

// RenderedTurn is a turn along with its markdown content rendered to HTML.
type RenderedTurn struct {
	Turn
	HTML string `json:"html"`
}

// HistoryResponse contains the full conversation of a session.
type HistoryResponse struct {
	SessionID string         `json:"session_id"`
	Turns     []RenderedTurn `json:"turns"`
}
