package model

import (
	"strings"
	"time"
)

// Role is the closed set of platform roles. Values are parsed once at the
// auth boundary; everything past that point switches on the variant.
type Role int

const (
	RoleUnknown Role = iota
	RoleAdmin
	RoleParent
	RoleTeacher
	RoleLearner
)

// ParseRole maps the wire name of a role to its variant. Unrecognised names
// yield RoleUnknown and false.
func ParseRole(s string) (Role, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ADMIN":
		return RoleAdmin, true
	case "PARENT":
		return RoleParent, true
	case "TEACHER":
		return RoleTeacher, true
	case "LEARNER":
		return RoleLearner, true
	default:
		return RoleUnknown, false
	}
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "ADMIN"
	case RoleParent:
		return "PARENT"
	case RoleTeacher:
		return "TEACHER"
	case RoleLearner:
		return "LEARNER"
	default:
		return "UNKNOWN"
	}
}

// User is the authenticated principal attached to a request.
type User struct {
	ID    string `json:"id"`
	Role  Role   `json:"-"`
	Grade string `json:"grade,omitempty"`
}

// MessageRole tags who authored a message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Conversation stores metadata about a learner's conversation with the tutor.
type Conversation struct {
	ID          string    `json:"id"`
	LearnerID   string    `json:"learner_id"`
	Title       string    `json:"title"`
	Prompt      string    `json:"prompt"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastMessage *string   `json:"last_message,omitempty"`
}

// Message stores a single, immutable turn half.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"-"`
	Role           MessageRole `json:"role"`
	Text           string      `json:"text"`
	CreatedAt      time.Time   `json:"created_at"`
}

// FullConversation includes the conversation metadata and its transcript.
type FullConversation struct {
	Conversation
	Messages []Message `json:"messages"`
}

// LearnerProfile links a learner to the teacher and parent allowed to read
// the learner's conversations.
type LearnerProfile struct {
	LearnerID string  `json:"learner_id"`
	TeacherID *string `json:"teacher_id,omitempty"`
	ParentID  *string `json:"parent_id,omitempty"`
}

// Event names carried by StreamEvent.Event.
const (
	EventConversation = "conversation"
	EventFragment     = "fragment"
	EventError        = "error"
	EventDone         = "done"
)

// StreamEvent is one record of a streamed assistant turn.
type StreamEvent struct {
	Text           string `json:"text"`
	Done           bool   `json:"done"`
	Error          string `json:"error,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Stopped        bool   `json:"stopped,omitempty"`
	Event          string `json:"-"`
}

// TurnResult is the synchronous reply to a learner message.
type TurnResult struct {
	Conversation *Conversation `json:"conversation,omitempty"`
	UserMessage  Message       `json:"user_message"`
	AIMessage    *Message      `json:"ai_message"`
}
