package llm

// SubmitRequest is the body of a message submission to the chat server.
type SubmitRequest struct {
	Text string `json:"text"`
}
