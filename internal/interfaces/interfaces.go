package interfaces

import (
	"context"

	"github.com/anooppandey17/virtual-teacher/internal/llm"
	"github.com/anooppandey17/virtual-teacher/internal/model"
	"github.com/anooppandey17/virtual-teacher/internal/service"
)

// The API layer depends on these contracts rather than on the concrete
// services, so handlers can be tested against mocks.

// ChatService runs learner turns and exposes conversation history.
type ChatService interface {
	PrepareTurn(ctx context.Context, user model.User, req service.TurnRequest) (*service.Turn, error)
	CompleteTurn(ctx context.Context, turn *service.Turn) (*model.TurnResult, error)
	StreamTurn(ctx context.Context, turn *service.Turn, stop <-chan struct{}, events chan<- model.StreamEvent)

	ListConversations(ctx context.Context, user model.User) ([]*model.Conversation, error)
	GetConversation(ctx context.Context, user model.User, id string) (*model.FullConversation, error)
	GetMessages(ctx context.Context, user model.User, id string) ([]model.Message, error)
	DeleteConversation(ctx context.Context, user model.User, id string) error
}

// ModelService lists the upstream's models.
type ModelService interface {
	List(ctx context.Context) ([]llm.ModelInfo, error)
}

// SettingsService manages the tutor settings.
type SettingsService interface {
	InitAndGet(ctx context.Context, defaults service.Settings) (*service.Settings, error)
	Get(ctx context.Context) (*service.Settings, error)
	Save(ctx context.Context, settings *service.Settings) error
}

var (
	_ ChatService     = (*service.ChatService)(nil)
	_ ModelService    = (*service.ModelService)(nil)
	_ SettingsService = (*service.SettingsService)(nil)
)
