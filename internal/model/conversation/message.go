package conversation

import "time"

// Role identifies the author side of a message.
type Role string

const (
	RoleUser Role = "USER"
	RoleAI   Role = "AI"
)

// Message persists one utterance in a session. A message with ForUserID set
// is visible to that participant only and must be excluded from every other
// participant's transcript query.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	SenderID  string    `json:"senderId,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Stage     Stage     `json:"stage"`
	ForUserID string    `json:"forUserId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// VisibleTo reports whether the given participant may read this message:
// their own messages, assistant messages addressed to them, and messages
// with no addressee restriction.
func (m Message) VisibleTo(userID string) bool {
	if m.ForUserID != "" && m.ForUserID != userID {
		return false
	}
	if m.Role == RoleUser && m.SenderID != "" && m.SenderID != userID {
		return false
	}
	return true
}
