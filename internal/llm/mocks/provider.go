package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/anooppandey17/virtual-teacher/internal/llm"
)

// MockProvider is a testify mock of llm.Provider.
type MockProvider struct {
	mock.Mock
}

// NewMockProvider creates a MockProvider whose expectations are asserted
// when the test finishes.
func NewMockProvider(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockProvider {
	m := &MockProvider{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockProvider) Complete(ctx context.Context, req llm.Request) (*llm.Reply, error) {
	ret := m.Called(ctx, req)
	var reply *llm.Reply
	if fn, ok := ret.Get(0).(func(context.Context, llm.Request) *llm.Reply); ok {
		reply = fn(ctx, req)
	} else if ret.Get(0) != nil {
		reply = ret.Get(0).(*llm.Reply)
	}
	return reply, ret.Error(1)
}

func (m *MockProvider) Stream(ctx context.Context, req llm.Request) (llm.FragmentStream, error) {
	ret := m.Called(ctx, req)
	var stream llm.FragmentStream
	if fn, ok := ret.Get(0).(func(context.Context, llm.Request) llm.FragmentStream); ok {
		stream = fn(ctx, req)
	} else if ret.Get(0) != nil {
		stream = ret.Get(0).(llm.FragmentStream)
	}
	return stream, ret.Error(1)
}

func (m *MockProvider) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	ret := m.Called(ctx)
	var models []llm.ModelInfo
	if ret.Get(0) != nil {
		models = ret.Get(0).([]llm.ModelInfo)
	}
	return models, ret.Error(1)
}

// FragmentStream is a scripted llm.FragmentStream. It returns Fragments in
// order, then Err (io.EOF when nil).
type FragmentStream struct {
	Fragments []string
	Err       error
	// Ctx, when set, makes Next wait for its cancellation after the
	// scripted fragments instead of ending, like a stalled upstream.
	Ctx context.Context

	pos    int
	Closed bool
}

func (s *FragmentStream) Next() (string, error) {
	if s.pos < len(s.Fragments) {
		f := s.Fragments[s.pos]
		s.pos++
		return f, nil
	}
	if s.Ctx != nil {
		<-s.Ctx.Done()
		return "", s.Ctx.Err()
	}
	if s.Err != nil {
		return "", s.Err
	}
	return "", io.EOF
}

func (s *FragmentStream) Close() error {
	s.Closed = true
	return nil
}
