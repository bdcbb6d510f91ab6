package types

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message represents one entry of the ordered message list sent to a provider.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionID"`
	Role      string      `json:"role"` // "user" | "assistant" | "system"
	Content   string      `json:"content"`
	Time      MessageTime `json:"time"`
}

// HasText reports whether the message carries textual content.
func (m *Message) HasText() bool {
	return m != nil && m.Content != ""
}

// WithContent returns a copy of the message with its content replaced.
func (m Message) WithContent(content string) Message {
	m.Content = content
	return m
}

// MessageTime contains timestamps for a message.
type MessageTime struct {
	Created int64  `json:"created"`
	Updated *int64 `json:"updated,omitempty"`
}

// MessageUpdate is a provider reply handed to the response hook.
type MessageUpdate struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionID"`
	Role      string      `json:"role"`
	Content   string      `json:"content"`
	Finish    *string     `json:"finish,omitempty"`
	Time      MessageTime `json:"time"`
}

// HasText reports whether the update carries textual content.
func (u *MessageUpdate) HasText() bool {
	return u != nil && u.Content != ""
}

// WithContent returns a copy of the update with its content replaced.
func (u MessageUpdate) WithContent(content string) MessageUpdate {
	u.Content = content
	return u
}

// LastMessage returns a pointer to a copy of the last message, or nil.
func LastMessage(messages []Message) *Message {
	if len(messages) == 0 {
		return nil
	}
	last := messages[len(messages)-1]
	return &last
}
