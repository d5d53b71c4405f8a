package session

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Status tracks delivery of a user message to the backend.
type Status string

const (
	StatusNone      Status = ""
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Message represents a single chat message
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Status    Status    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message with a fresh id. User messages start out pending.
func NewMessage(role Role, content string) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	if role == RoleUser {
		msg.Status = StatusPending
	}
	return msg
}

// State is either NoSession or Active.
type State interface {
	isState()
}

// NoSession is the state before any session has been started.
type NoSession struct{}

// Active holds the backend-issued session id.
type Active struct {
	ID        string
	StartedAt time.Time
}

func (NoSession) isState() {}
func (Active) isState()    {}

// ID returns the session id of s, or "" with ok=false when there is none.
func ID(s State) (id string, ok bool) {
	switch st := s.(type) {
	case Active:
		return st.ID, true
	default:
		return "", false
	}
}
