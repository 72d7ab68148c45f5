package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/anooppandey17/virtual-teacher/internal/llm"
	"github.com/anooppandey17/virtual-teacher/internal/model"
	"github.com/anooppandey17/virtual-teacher/internal/service"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockChatService is a testify mock of interfaces.ChatService.
type MockChatService struct {
	mock.Mock
}

func NewMockChatService(t testingT) *MockChatService {
	m := &MockChatService{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockChatService) PrepareTurn(ctx context.Context, user model.User, req service.TurnRequest) (*service.Turn, error) {
	ret := m.Called(ctx, user, req)
	var turn *service.Turn
	if ret.Get(0) != nil {
		turn = ret.Get(0).(*service.Turn)
	}
	return turn, ret.Error(1)
}

func (m *MockChatService) CompleteTurn(ctx context.Context, turn *service.Turn) (*model.TurnResult, error) {
	ret := m.Called(ctx, turn)
	var result *model.TurnResult
	if ret.Get(0) != nil {
		result = ret.Get(0).(*model.TurnResult)
	}
	return result, ret.Error(1)
}

// StreamTurn records the call. Tests script the events with Run; the
// channel is closed here afterwards, as the real service does.
func (m *MockChatService) StreamTurn(ctx context.Context, turn *service.Turn, stop <-chan struct{}, events chan<- model.StreamEvent) {
	defer close(events)
	m.Called(ctx, turn, stop, events)
}

func (m *MockChatService) ListConversations(ctx context.Context, user model.User) ([]*model.Conversation, error) {
	ret := m.Called(ctx, user)
	var list []*model.Conversation
	if ret.Get(0) != nil {
		list = ret.Get(0).([]*model.Conversation)
	}
	return list, ret.Error(1)
}

func (m *MockChatService) GetConversation(ctx context.Context, user model.User, id string) (*model.FullConversation, error) {
	ret := m.Called(ctx, user, id)
	var full *model.FullConversation
	if ret.Get(0) != nil {
		full = ret.Get(0).(*model.FullConversation)
	}
	return full, ret.Error(1)
}

func (m *MockChatService) GetMessages(ctx context.Context, user model.User, id string) ([]model.Message, error) {
	ret := m.Called(ctx, user, id)
	var messages []model.Message
	if ret.Get(0) != nil {
		messages = ret.Get(0).([]model.Message)
	}
	return messages, ret.Error(1)
}

func (m *MockChatService) DeleteConversation(ctx context.Context, user model.User, id string) error {
	return m.Called(ctx, user, id).Error(0)
}

// MockModelService is a testify mock of interfaces.ModelService.
type MockModelService struct {
	mock.Mock
}

func NewMockModelService(t testingT) *MockModelService {
	m := &MockModelService{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockModelService) List(ctx context.Context) ([]llm.ModelInfo, error) {
	ret := m.Called(ctx)
	var models []llm.ModelInfo
	if ret.Get(0) != nil {
		models = ret.Get(0).([]llm.ModelInfo)
	}
	return models, ret.Error(1)
}

// MockSettingsService is a testify mock of interfaces.SettingsService.
type MockSettingsService struct {
	mock.Mock
}

func NewMockSettingsService(t testingT) *MockSettingsService {
	m := &MockSettingsService{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSettingsService) InitAndGet(ctx context.Context, defaults service.Settings) (*service.Settings, error) {
	ret := m.Called(ctx, defaults)
	var settings *service.Settings
	if ret.Get(0) != nil {
		settings = ret.Get(0).(*service.Settings)
	}
	return settings, ret.Error(1)
}

func (m *MockSettingsService) Get(ctx context.Context) (*service.Settings, error) {
	ret := m.Called(ctx)
	var settings *service.Settings
	if ret.Get(0) != nil {
		settings = ret.Get(0).(*service.Settings)
	}
	return settings, ret.Error(1)
}

func (m *MockSettingsService) Save(ctx context.Context, settings *service.Settings) error {
	return m.Called(ctx, settings).Error(0)
}
