package service_test

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/anooppandey17/virtual-teacher/internal/database"
	app_errors "github.com/anooppandey17/virtual-teacher/internal/errors"
	"github.com/anooppandey17/virtual-teacher/internal/llm"
	"github.com/anooppandey17/virtual-teacher/internal/llm/mocks"
	"github.com/anooppandey17/virtual-teacher/internal/lock"
	"github.com/anooppandey17/virtual-teacher/internal/model"
	"github.com/anooppandey17/virtual-teacher/internal/pacing"
	"github.com/anooppandey17/virtual-teacher/internal/prompt"
	"github.com/anooppandey17/virtual-teacher/internal/repository"
	"github.com/anooppandey17/virtual-teacher/internal/service"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubSettings struct {
	settings *service.Settings
	err      error
}

func (s stubSettings) Get(context.Context) (*service.Settings, error) {
	return s.settings, s.err
}

type chatFixture struct {
	svc  *service.ChatService
	repo repository.Repository
	llm  *mocks.MockProvider
}

var (
	learner      = model.User{ID: "learner-1", Role: model.RoleLearner, Grade: "3"}
	otherLearner = model.User{ID: "learner-2", Role: model.RoleLearner, Grade: "5"}
	teacher      = model.User{ID: "teacher-1", Role: model.RoleTeacher}
	parent       = model.User{ID: "parent-1", Role: model.RoleParent}
	admin        = model.User{ID: "admin-1", Role: model.RoleAdmin}
)

func setupChatService(t *testing.T) chatFixture {
	t.Helper()
	db, err := database.InitDB(filepath.Join(t.TempDir(), "tutor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := repository.NewSQLiteRepository(db)
	provider := mocks.NewMockProvider(t)
	settings := stubSettings{settings: &service.Settings{Persona: "Be a kind tutor.", Model: "tutor-model"}}
	builder := prompt.NewBuilder(
		prompt.WithRand(rand.New(rand.NewSource(1))),
		prompt.WithClock(func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local) }),
	)

	svc := service.NewChatService(repo, provider, settings, lock.NewLocalLocker(),
		service.WithPromptBuilder(builder),
		service.WithPacer(pacing.New(pacing.Config{})),
		service.WithTurnTimeout(5*time.Second),
	)
	return chatFixture{svc: svc, repo: repo, llm: provider}
}

// streamTurn runs StreamTurn to completion and returns every event.
func streamTurn(ctx context.Context, svc *service.ChatService, turn *service.Turn, stop <-chan struct{}) []model.StreamEvent {
	events := make(chan model.StreamEvent)
	go svc.StreamTurn(ctx, turn, stop, events)
	var out []model.StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func fragmentsOf(events []model.StreamEvent) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Event == model.EventFragment {
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}

func TestChatService_GreetingSkipsUpstream(t *testing.T) {
	ctx := context.Background()
	f := setupChatService(t)

	turn, err := f.svc.PrepareTurn(ctx, learner, service.TurnRequest{Text: "hello"})
	require.NoError(t, err)
	assert.True(t, turn.Created)
	assert.True(t, turn.Greeting)
	assert.Equal(t, "hello", turn.Conversation.Title)

	result, err := f.svc.CompleteTurn(ctx, turn)
	require.NoError(t, err)
	require.NotNil(t, result.Conversation)
	require.NotNil(t, result.AIMessage)
	assert.Equal(t, model.MessageRoleAssistant, result.AIMessage.Role)
	assert.Contains(t, result.AIMessage.Text, "! ")

	messages, err := f.repo.GetMessages(ctx, turn.Conversation.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "hello", messages[0].Text)
	assert.Equal(t, result.AIMessage.Text, messages[1].Text)
	f.llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestChatService_StreamPersistsReleasedText(t *testing.T) {
	ctx := context.Background()
	f := setupChatService(t)

	question := "Explain how plants make their food from sunlight and water"
	turn, err := f.svc.PrepareTurn(ctx, learner, service.TurnRequest{Text: question})
	require.NoError(t, err)
	assert.Equal(t, "Explain how plants make their food from sunlight...", turn.Conversation.Title)
	before := turn.Conversation.UpdatedAt

	stream := &mocks.FragmentStream{Fragments: []string{"Plants ", "use light", ". They ", "make sugar", "."}}
	f.llm.On("Stream", mock.Anything, mock.MatchedBy(func(r llm.Request) bool {
		return strings.Contains(r.Prompt, "Current question: "+question) &&
			strings.Contains(r.Prompt, prompt.GradeInstruction("3")) &&
			r.Persona == "Be a kind tutor." && r.Model == "tutor-model"
	})).Return(stream, nil).Once()

	events := streamTurn(ctx, f.svc, turn, nil)
	require.GreaterOrEqual(t, len(events), 3)

	first := events[0]
	assert.Equal(t, model.EventConversation, first.Event)
	assert.Equal(t, turn.Conversation.ID, first.ConversationID)

	last := events[len(events)-1]
	assert.Equal(t, model.EventDone, last.Event)
	assert.True(t, last.Done)
	assert.False(t, last.Stopped)
	require.NotEmpty(t, last.MessageID)

	assert.Equal(t, "Plants use light. They make sugar.", fragmentsOf(events))
	assert.True(t, stream.Closed)

	full, err := f.svc.GetConversation(ctx, learner, turn.Conversation.ID)
	require.NoError(t, err)
	require.Len(t, full.Messages, 2)
	assert.Equal(t, last.MessageID, full.Messages[1].ID)
	assert.Equal(t, "Plants use light. They make sugar.", full.Messages[1].Text)
	assert.True(t, full.UpdatedAt.After(before))
	require.NotNil(t, full.LastMessage)
	assert.Equal(t, "Plants use light. They make sugar.", *full.LastMessage)
}

func TestChatService_CompleteStoresFailureText(t *testing.T) {
	ctx := context.Background()

	t.Run("Upstream rate limited", func(t *testing.T) {
		f := setupChatService(t)
		turn, err := f.svc.PrepareTurn(ctx, learner, service.TurnRequest{Text: "What is a fraction?"})
		require.NoError(t, err)

		f.llm.On("Complete", mock.Anything, mock.Anything).
			Return(&llm.Reply{Text: llm.RateLimitedMessage, Failure: llm.FailureRateLimited}, nil).Once()

		result, err := f.svc.CompleteTurn(ctx, turn)
		require.NoError(t, err)
		require.NotNil(t, result.AIMessage)
		assert.Equal(t, llm.RateLimitedMessage, result.AIMessage.Text)
	})

	t.Run("Turn deadline reached", func(t *testing.T) {
		f := setupChatService(t)
		turn, err := f.svc.PrepareTurn(ctx, learner, service.TurnRequest{Text: "What is a fraction?"})
		require.NoError(t, err)

		var greeting string
		f.llm.On("Complete", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			greeting = args.Get(1).(llm.Request).Greeting
		}).Return(nil, context.DeadlineExceeded).Once()

		result, err := f.svc.CompleteTurn(ctx, turn)
		require.NoError(t, err)
		require.NotEmpty(t, greeting)
		assert.Equal(t, llm.TimeoutMessage(greeting), result.AIMessage.Text)
		assert.True(t, strings.HasPrefix(result.AIMessage.Text, greeting+"!"))
	})

	t.Run("Upstream aborted", func(t *testing.T) {
		f := setupChatService(t)
		turn, err := f.svc.PrepareTurn(ctx, learner, service.TurnRequest{Text: "What is a fraction?"})
		require.NoError(t, err)

		f.llm.On("Complete", mock.Anything, mock.Anything).Return(nil, context.Canceled).Once()

		result, err := f.svc.CompleteTurn(ctx, turn)
		require.NoError(t, err)
		assert.Equal(t, llm.UnavailableMessage, result.AIMessage.Text)
	})

	t.Run("Follow-up turn carries history and omits conversation", func(t *testing.T) {
		f := setupChatService(t)
		first, err := f.svc.PrepareTurn(ctx, learner, service.TurnRequest{Text: "What is a fraction?"})
		require.NoError(t, err)
		f.llm.On("Complete", mock.Anything, mock.Anything).Return(&llm.Reply{Text: "A part of a whole."}, nil).Once()
		_, err = f.svc.CompleteTurn(ctx, first)
		require.NoError(t, err)

		second, err := f.svc.PrepareTurn(ctx, learner, service.TurnRequest{ConversationID: first.Conversation.ID, Text: "Give an example"})
		require.NoError(t, err)
		assert.False(t, second.Created)
		f.llm.On("Complete", mock.Anything, mock.MatchedBy(func(r llm.Request) bool {
			return strings.Contains(r.Prompt, "Student: What is a fraction?") &&
				strings.Contains(r.Prompt, "Teacher: A part of a whole.")
		})).Return(&llm.Reply{Text: "One half."}, nil).Once()

		result, err := f.svc.CompleteTurn(ctx, second)
		require.NoError(t, err)
		assert.Nil(t, result.Conversation)
		assert.Equal(t, "One half.", result.AIMessage.Text)
	})
}

func TestChatService_SettingsUnavailable(t *testing.T) {
	ctx := context.Background()
	db, err := database.InitDB(filepath.Join(t.TempDir(), "tutor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	provider := mocks.NewMockProvider(t)
	svc := service.NewChatService(repository.NewSQLiteRepository(db), provider,
		stubSettings{err: errors.New("settings table locked")}, lock.NewLocalLocker(),
		service.WithPacer(pacing.New(pacing.Config{})))

	turn, err := svc.PrepareTurn(ctx, learner, service.TurnRequest{Text: "Why is the sky blue?"})
	require.NoError(t, err)
	provider.On("Complete", mock.Anything, mock.MatchedBy(func(r llm.Request) bool {
		return r.Persona == "" && r.Model == ""
	})).Return(&llm.Reply{Text: "Light scatters."}, nil).Once()

	result, err := svc.CompleteTurn(ctx, turn)
	require.NoError(t, err)
	assert.Equal(t, "Light scatters.", result.AIMessage.Text)
}

func TestChatService_EmptyStreamStoresNoReply(t *testing.T) {
	ctx := context.Background()
	f := setupChatService(t)

	turn, err := f.svc.PrepareTurn(ctx, learner, service.TurnRequest{Text: "Tell me about volcanoes"})
	require.NoError(t, err)
	f.llm.On("Stream", mock.Anything, mock.Anything).Return(&mocks.FragmentStream{}, nil).Once()

	events := streamTurn(ctx, f.svc, turn, nil)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventDone, events[1].Event)
	assert.Empty(t, events[1].MessageID)

	messages, err := f.repo.GetMessages(ctx, turn.Conversation.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, model.MessageRoleUser, messages[0].Role)
}

func TestChatService_StreamErrorAfterFragments(t *testing.T) {
	ctx := context.Background()
	f := setupChatService(t)

	turn, err := f.svc.PrepareTurn(ctx, learner, service.TurnRequest{Text: "Tell me about volcanoes"})
	require.NoError(t, err)
	var greeting string
	f.llm.On("Stream", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		greeting = args.Get(1).(llm.Request).Greeting
	}).Return(&mocks.FragmentStream{Fragments: []string{"Volcanoes ", "erupt."}, Err: llm.ErrStreamIdle}, nil).Once()

	events := streamTurn(ctx, f.svc, turn, nil)

	var errorEvents int
	for _, ev := range events {
		if ev.Event == model.EventError {
			errorEvents++
			assert.Equal(t, llm.TimeoutMessage(greeting), ev.Error)
			assert.Equal(t, llm.TimeoutMessage(greeting), ev.Text)
		}
	}
	assert.Equal(t, 1, errorEvents)
	assert.Equal(t, model.EventDone, events[len(events)-1].Event)

	messages, err := f.repo.GetMessages(ctx, turn.Conversation.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "Volcanoes erupt.", messages[1].Text)
}

func TestChatService_StopPersistsPartialReply(t *testing.T) {
	ctx := context.Background()
	f := setupChatService(t)

	turn, err := f.svc.PrepareTurn(ctx, learner, service.TurnRequest{Text: "Explain gravity in detail"})
	require.NoError(t, err)

	var stream *mocks.FragmentStream
	f.llm.On("Stream", mock.Anything, mock.Anything).Return(func(ctx context.Context, _ llm.Request) llm.FragmentStream {
		stream = &mocks.FragmentStream{Fragments: []string{"Gravity pulls things together. "}, Ctx: ctx}
		return stream
	}, nil).Once()

	stop := make(chan struct{})
	events := make(chan model.StreamEvent)
	go f.svc.StreamTurn(ctx, turn, stop, events)

	var collected []model.StreamEvent
	for ev := range events {
		collected = append(collected, ev)
		if ev.Event == model.EventFragment {
			close(stop)
		}
	}

	last := collected[len(collected)-1]
	assert.True(t, last.Done)
	assert.True(t, last.Stopped)
	require.NotEmpty(t, last.MessageID)
	for _, ev := range collected {
		assert.NotEqual(t, model.EventError, ev.Event)
	}
	assert.True(t, stream.Closed)

	messages, err := f.repo.GetMessages(ctx, turn.Conversation.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "Gravity pulls things together. ", messages[1].Text)
}

func TestChatService_ClientGoneStillPersists(t *testing.T) {
	f := setupChatService(t)

	turn, err := f.svc.PrepareTurn(context.Background(), learner, service.TurnRequest{Text: "What are atoms?"})
	require.NoError(t, err)
	f.llm.On("Stream", mock.Anything, mock.Anything).
		Return(&mocks.FragmentStream{Fragments: []string{"Atoms are ", "tiny."}}, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Nobody reads: every send is dropped because ctx is done.
	events := make(chan model.StreamEvent)
	f.svc.StreamTurn(ctx, turn, nil, events)

	_, open := <-events
	assert.False(t, open)

	messages, err := f.repo.GetMessages(context.Background(), turn.Conversation.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "Atoms are tiny.", messages[1].Text)
}

func TestChatService_PrepareTurnRejections(t *testing.T) {
	ctx := context.Background()
	f := setupChatService(t)

	_, err := f.svc.PrepareTurn(ctx, teacher, service.TurnRequest{Text: "hi"})
	assert.ErrorIs(t, err, app_errors.ErrPermission)

	_, err = f.svc.PrepareTurn(ctx, learner, service.TurnRequest{Text: "   "})
	assert.ErrorIs(t, err, app_errors.ErrValidation)

	_, err = f.svc.PrepareTurn(ctx, learner, service.TurnRequest{ConversationID: "missing", Text: "hi"})
	assert.ErrorIs(t, err, app_errors.ErrNotFound)

	turn, err := f.svc.PrepareTurn(ctx, learner, service.TurnRequest{Text: "hi"})
	require.NoError(t, err)
	turn.Release()

	_, err = f.svc.PrepareTurn(ctx, otherLearner, service.TurnRequest{ConversationID: turn.Conversation.ID, Text: "hi"})
	assert.ErrorIs(t, err, app_errors.ErrNotFound)
}

func TestChatService_OneTurnAtATime(t *testing.T) {
	ctx := context.Background()
	f := setupChatService(t)

	first, err := f.svc.PrepareTurn(ctx, learner, service.TurnRequest{Text: "hi"})
	require.NoError(t, err)

	_, err = f.svc.PrepareTurn(ctx, learner, service.TurnRequest{ConversationID: first.Conversation.ID, Text: "hello again"})
	assert.ErrorIs(t, err, app_errors.ErrConflict)

	first.Release()
	first.Release()

	next, err := f.svc.PrepareTurn(ctx, learner, service.TurnRequest{ConversationID: first.Conversation.ID, Text: "hello again"})
	require.NoError(t, err)
	next.Release()
}

func TestChatService_Visibility(t *testing.T) {
	ctx := context.Background()
	f := setupChatService(t)

	turn, err := f.svc.PrepareTurn(ctx, learner, service.TurnRequest{Text: "hi"})
	require.NoError(t, err)
	turn.Release()
	id := turn.Conversation.ID

	teacherID, parentID := teacher.ID, parent.ID
	require.NoError(t, f.repo.UpsertLearnerProfile(ctx, &model.LearnerProfile{
		LearnerID: learner.ID, TeacherID: &teacherID, ParentID: &parentID,
	}))

	for _, user := range []model.User{learner, teacher, parent, admin} {
		full, err := f.svc.GetConversation(ctx, user, id)
		require.NoError(t, err, user.Role.String())
		assert.Len(t, full.Messages, 1)

		list, err := f.svc.ListConversations(ctx, user)
		require.NoError(t, err)
		assert.Len(t, list, 1, user.Role.String())
	}

	strangers := []model.User{
		otherLearner,
		{ID: "teacher-2", Role: model.RoleTeacher},
		{ID: "parent-2", Role: model.RoleParent},
		{ID: "nobody", Role: model.RoleUnknown},
	}
	for _, user := range strangers {
		_, err := f.svc.GetMessages(ctx, user, id)
		assert.ErrorIs(t, err, app_errors.ErrNotFound, user.ID)
	}

	assert.ErrorIs(t, f.svc.DeleteConversation(ctx, teacher, id), app_errors.ErrPermission)
	assert.ErrorIs(t, f.svc.DeleteConversation(ctx, otherLearner, id), app_errors.ErrNotFound)
	require.NoError(t, f.svc.DeleteConversation(ctx, learner, id))

	_, err = f.svc.GetConversation(ctx, admin, id)
	assert.ErrorIs(t, err, app_errors.ErrNotFound)
}

func TestChatService_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := setupChatService(t)

	older, err := f.svc.PrepareTurn(ctx, learner, service.TurnRequest{Text: "first topic"})
	require.NoError(t, err)
	older.Release()
	newer, err := f.svc.PrepareTurn(ctx, learner, service.TurnRequest{Text: "second topic"})
	require.NoError(t, err)
	newer.Release()

	list, err := f.svc.ListConversations(ctx, learner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.Conversation.ID, list[0].ID)

	// A new message moves the older conversation to the top.
	again, err := f.svc.PrepareTurn(ctx, learner, service.TurnRequest{ConversationID: older.Conversation.ID, Text: "more on this"})
	require.NoError(t, err)
	again.Release()

	list, err = f.svc.ListConversations(ctx, learner)
	require.NoError(t, err)
	assert.Equal(t, older.Conversation.ID, list[0].ID)
}

// failingMessages stores conversations but refuses every message.
type failingMessages struct {
	repository.Repository
}

func (failingMessages) AddMessage(context.Context, *model.Message) (time.Time, error) {
	return time.Time{}, errors.New("disk full")
}

func TestChatService_FailedFirstMessageLeavesNoConversation(t *testing.T) {
	ctx := context.Background()
	db, err := database.InitDB(filepath.Join(t.TempDir(), "tutor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := repository.NewSQLiteRepository(db)
	locker := lock.NewLocalLocker()
	svc := service.NewChatService(failingMessages{repo}, mocks.NewMockProvider(t),
		stubSettings{settings: &service.Settings{}}, locker)

	turn, err := svc.PrepareTurn(ctx, learner, service.TurnRequest{Text: "What is a prime number?"})
	require.Error(t, err)
	assert.Nil(t, turn)

	convs, err := repo.ListConversations(ctx, repository.Scope{Role: model.RoleAdmin})
	require.NoError(t, err)
	assert.Empty(t, convs)
}
