// Package llm provides the internal representations of chat turns and the
// request, response and error shapes exchanged with the generative chat API.
package llm

import "fmt"

// Role identifies who produced a turn.
type Role string

const (
	// RoleUser is a turn typed by the person chatting.
	RoleUser Role = "user"

	// RoleModel is a turn produced by the chat API. The name matches the
	// role vocabulary the Gemini API expects, so it is replayed unchanged.
	RoleModel Role = "model"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// Turn represents one message in a conversation, tagged with its speaker.
// Turns are values and are never mutated after creation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserTurn creates a turn spoken by the user.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// ModelTurn creates a turn produced by the model.
func ModelTurn(content string) Turn {
	return Turn{Role: RoleModel, Content: content}
}

// Message maps the turn into the {role, parts} shape the chat API takes as history.
func (t Turn) Message() Message {
	return Message{Role: t.Role, Parts: []string{t.Content}}
}

func (t Turn) String() string {
	return fmt.Sprintf("%s: %s", t.Role, t.Content)
}
