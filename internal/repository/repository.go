package repository

import (
	"context"
	"time"

	"github.com/anooppandey17/virtual-teacher/internal/model"
)

// Scope selects which conversations a principal may list.
type Scope struct {
	Role   model.Role
	UserID string
}

// Repository defines the interface for data storage operations.
type Repository interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	ListConversations(ctx context.Context, scope Scope) ([]*model.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	// AddMessage appends msg and advances the conversation's updated_at in
	// one transaction. It returns the new updated_at, which is always later
	// than the previous one.
	AddMessage(ctx context.Context, msg *model.Message) (time.Time, error)
	GetMessages(ctx context.Context, conversationID string) ([]model.Message, error)

	GetLearnerProfile(ctx context.Context, learnerID string) (*model.LearnerProfile, error)
	UpsertLearnerProfile(ctx context.Context, profile *model.LearnerProfile) error
}
