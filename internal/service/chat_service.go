package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	app_errors "github.com/anooppandey17/virtual-teacher/internal/errors"
	"github.com/anooppandey17/virtual-teacher/internal/llm"
	"github.com/anooppandey17/virtual-teacher/internal/lock"
	"github.com/anooppandey17/virtual-teacher/internal/model"
	"github.com/anooppandey17/virtual-teacher/internal/pacing"
	"github.com/anooppandey17/virtual-teacher/internal/prompt"
	"github.com/anooppandey17/virtual-teacher/internal/repository"
)

const (
	titleWords         = 8
	defaultTitle       = "New conversation"
	defaultTurnTimeout = 3 * time.Minute

	streamErrorMessage = "Sorry, something went wrong while I was answering. Please try again."
)

// SettingsReader supplies the current persona and model for each turn.
type SettingsReader interface {
	Get(ctx context.Context) (*Settings, error)
}

// TurnRequest is a learner message. An empty ConversationID starts a new
// conversation seeded with Text.
type TurnRequest struct {
	ConversationID string
	Text           string
}

// Turn is a prepared turn: the user message is stored and the
// conversation's turn lock is held until the turn is completed, streamed
// or released.
type Turn struct {
	Conversation *model.Conversation
	UserMessage  *model.Message
	Created      bool
	Greeting     bool

	user    model.User
	text    string
	history []model.Message

	release     func()
	releaseOnce sync.Once
}

// Release frees the conversation's turn lock. It is safe to call more than
// once and is called by CompleteTurn and StreamTurn.
func (t *Turn) Release() {
	t.releaseOnce.Do(func() {
		if t.release != nil {
			t.release()
		}
	})
}

type ChatOption func(*ChatService)

func WithPromptBuilder(b *prompt.Builder) ChatOption {
	return func(s *ChatService) { s.builder = b }
}

func WithPacer(p *pacing.Pacer) ChatOption {
	return func(s *ChatService) { s.pacer = p }
}

// WithTurnTimeout bounds generation of a single reply, independent of the
// client connection.
func WithTurnTimeout(d time.Duration) ChatOption {
	return func(s *ChatService) { s.turnTimeout = d }
}

// ChatService orchestrates learner turns: classification, prompt
// construction, the upstream call, pacing and persistence.
type ChatService struct {
	repo        repository.Repository
	store       *TurnStore
	llm         llm.Provider
	settings    SettingsReader
	locker      lock.Locker
	builder     *prompt.Builder
	pacer       *pacing.Pacer
	turnTimeout time.Duration
	now         func() time.Time
}

func NewChatService(repo repository.Repository, provider llm.Provider, settings SettingsReader, locker lock.Locker, opts ...ChatOption) *ChatService {
	s := &ChatService{
		repo:        repo,
		store:       NewTurnStore(repo),
		llm:         provider,
		settings:    settings,
		locker:      locker,
		builder:     prompt.NewBuilder(),
		pacer:       pacing.New(pacing.DefaultConfig()),
		turnTimeout: defaultTurnTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// deriveTitle keeps the first words of the seed prompt.
func deriveTitle(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return defaultTitle
	}
	if len(words) <= titleWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:titleWords], " ") + "..."
}

// PrepareTurn validates the request, creates or loads the conversation,
// takes its turn lock and stores the learner's message.
func (s *ChatService) PrepareTurn(ctx context.Context, user model.User, req TurnRequest) (*Turn, error) {
	if user.Role != model.RoleLearner {
		return nil, fmt.Errorf("%w: only learners can send messages", app_errors.ErrPermission)
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: message text cannot be empty", app_errors.ErrValidation)
	}

	turn := &Turn{user: user, text: text, Greeting: prompt.IsGreeting(text)}

	if req.ConversationID == "" {
		now := s.now().UTC()
		conv := &model.Conversation{
			ID:        uuid.NewString(),
			LearnerID: user.ID,
			Title:     deriveTitle(text),
			Prompt:    text,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.CreateConversation(ctx, conv); err != nil {
			return nil, fmt.Errorf("could not create conversation: %w", err)
		}
		slog.Info("Created conversation", "conversation_id", conv.ID, "learner_id", user.ID)
		turn.Conversation = conv
		turn.Created = true
	} else {
		conv, err := s.repo.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return nil, translateRepoError(err, req.ConversationID)
		}
		if conv.LearnerID != user.ID {
			return nil, fmt.Errorf("%w: conversation %s", app_errors.ErrNotFound, req.ConversationID)
		}
		turn.Conversation = conv
	}

	release, err := s.locker.TryAcquire(ctx, turn.Conversation.ID)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return nil, fmt.Errorf("%w: a reply is already in progress for this conversation", app_errors.ErrConflict)
		}
		return nil, fmt.Errorf("could not lock conversation: %w", err)
	}
	turn.release = release

	if !turn.Created {
		history, err := s.repo.GetMessages(ctx, turn.Conversation.ID)
		if err != nil {
			turn.Release()
			return nil, fmt.Errorf("could not load history: %w", err)
		}
		turn.history = history
	}

	userMsg, err := s.store.RecordUserTurn(ctx, turn.Conversation, text)
	if err != nil {
		if turn.Created {
			s.discardConversation(ctx, turn.Conversation.ID)
		}
		turn.Release()
		return nil, err
	}
	turn.UserMessage = userMsg
	return turn, nil
}

// discardConversation removes a conversation created for a turn whose first
// message could not be stored.
func (s *ChatService) discardConversation(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.repo.DeleteConversation(ctx, id); err != nil {
		slog.Error("Failed to discard empty conversation", "conversation_id", id, "error", err)
	}
}

// request builds the upstream request for a substantive question.
func (s *ChatService) request(ctx context.Context, turn *Turn) llm.Request {
	req := llm.Request{
		Prompt: s.builder.Build(prompt.Input{
			Question: turn.text,
			Grade:    turn.user.Grade,
			History:  turn.history,
		}),
		Greeting: s.builder.TimeGreeting(),
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		slog.Warn("Could not load tutor settings, using defaults", "error", err)
		return req
	}
	req.Persona = settings.Persona
	req.Model = settings.Model
	return req
}

// generationContext detaches generation from the client so that a reply is
// finished and stored even after the client leaves.
func (s *ChatService) generationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.turnTimeout)
}

// CompleteTurn produces the whole reply before returning it.
func (s *ChatService) CompleteTurn(ctx context.Context, turn *Turn) (*model.TurnResult, error) {
	defer turn.Release()

	var text string
	if turn.Greeting {
		text = s.builder.GreetingReply()
	} else {
		genCtx, cancel := s.generationContext(ctx)
		defer cancel()

		req := s.request(genCtx, turn)
		reply, err := s.llm.Complete(genCtx, req)
		if err != nil {
			slog.Error("Upstream completion aborted", "conversation_id", turn.Conversation.ID, "error", err)
			text = failureMessage(err, req.Greeting, llm.UnavailableMessage)
		} else {
			text = reply.Text
		}
	}

	buffer := s.store.NewReplyBuffer(turn.Conversation)
	buffer.Append(text)
	aiMsg, err := buffer.Commit(ctx)
	if err != nil {
		slog.Error("Failed to save assistant message", "conversation_id", turn.Conversation.ID, "error", err)
		return nil, err
	}

	result := &model.TurnResult{UserMessage: *turn.UserMessage, AIMessage: aiMsg}
	if turn.Created {
		result.Conversation = turn.Conversation
	}
	return result, nil
}

// StreamTurn generates the reply incrementally and writes events to events,
// which it closes when done. The first event names the conversation, then
// paced fragments follow, then a single done event. Errors become one error
// event. stop, when non-nil, ends generation early; the partial reply is
// still stored.
func (s *ChatService) StreamTurn(ctx context.Context, turn *Turn, stop <-chan struct{}, events chan<- model.StreamEvent) {
	defer close(events)
	defer turn.Release()

	send := func(ev model.StreamEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	send(model.StreamEvent{
		Event:          model.EventConversation,
		ConversationID: turn.Conversation.ID,
		MessageID:      turn.UserMessage.ID,
	})

	genCtx, cancel := s.generationContext(ctx)
	defer cancel()

	var stopped atomic.Bool
	if stop != nil {
		go func() {
			select {
			case <-stop:
				stopped.Store(true)
				cancel()
			case <-genCtx.Done():
			}
		}()
	}

	// Pacing delays end as soon as either the client or generation is gone.
	paceCtx, paceCancel := context.WithCancel(genCtx)
	defer paceCancel()
	stopAfter := context.AfterFunc(ctx, paceCancel)
	defer stopAfter()

	buffer := s.store.NewReplyBuffer(turn.Conversation)
	emit := func(fragment string) {
		buffer.Append(fragment)
		send(model.StreamEvent{Event: model.EventFragment, Text: fragment})
	}

	var req llm.Request
	if !turn.Greeting {
		req = s.request(genCtx, turn)
	}
	err := s.generate(genCtx, paceCtx, turn, req, emit)
	if err != nil && !stopped.Load() {
		slog.Error("Stream generation failed", "conversation_id", turn.Conversation.ID, "error", err)
		msg := failureMessage(err, req.Greeting, streamErrorMessage)
		send(model.StreamEvent{Event: model.EventError, Text: msg, Error: msg})
	}

	aiMsg, perr := buffer.Commit(ctx)
	if perr != nil {
		slog.Error("Failed to save assistant message", "conversation_id", turn.Conversation.ID, "error", perr)
	}

	done := model.StreamEvent{Event: model.EventDone, Done: true, ConversationID: turn.Conversation.ID, Stopped: stopped.Load()}
	if aiMsg != nil {
		done.MessageID = aiMsg.ID
	}
	send(done)
}

// generate runs the greeting shortcut or the upstream stream through the
// pacer. A panic is reported as an error so the caller can still persist
// what was emitted.
func (s *ChatService) generate(genCtx, paceCtx context.Context, turn *Turn, req llm.Request, emit func(string)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during generation: %v", r)
		}
	}()

	if turn.Greeting {
		s.pacer.Typewrite(paceCtx, s.builder.GreetingReply(), emit)
		return nil
	}

	stream, err := s.llm.Stream(genCtx, req)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			slog.Debug("Failed to close upstream stream", "error", cerr)
		}
	}()
	return s.pacer.Pace(paceCtx, stream, emit)
}

// failureMessage is the text shown when generation ends with err. Running
// out of time gets the greeting-prefixed timeout text, anything else gets
// fallback.
func failureMessage(err error, greeting, fallback string) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, llm.ErrStreamIdle) {
		return llm.TimeoutMessage(greeting)
	}
	return fallback
}

// ListConversations returns the conversations the user may see.
func (s *ChatService) ListConversations(ctx context.Context, user model.User) ([]*model.Conversation, error) {
	return s.repo.ListConversations(ctx, repository.Scope{Role: user.Role, UserID: user.ID})
}

// GetConversation returns a visible conversation with its transcript.
func (s *ChatService) GetConversation(ctx context.Context, user model.User, id string) (*model.FullConversation, error) {
	conv, err := s.visibleConversation(ctx, user, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.repo.GetMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("could not get messages: %w", err)
	}
	return &model.FullConversation{Conversation: *conv, Messages: messages}, nil
}

// GetMessages returns the transcript of a visible conversation.
func (s *ChatService) GetMessages(ctx context.Context, user model.User, id string) ([]model.Message, error) {
	if _, err := s.visibleConversation(ctx, user, id); err != nil {
		return nil, err
	}
	return s.repo.GetMessages(ctx, id)
}

// DeleteConversation removes a conversation and its messages. Only the
// owning learner or an admin may delete.
func (s *ChatService) DeleteConversation(ctx context.Context, user model.User, id string) error {
	conv, err := s.visibleConversation(ctx, user, id)
	if err != nil {
		return err
	}
	switch user.Role {
	case model.RoleAdmin:
	case model.RoleLearner:
		if conv.LearnerID != user.ID {
			return fmt.Errorf("%w: conversation %s", app_errors.ErrNotFound, id)
		}
	case model.RoleTeacher, model.RoleParent, model.RoleUnknown:
		return fmt.Errorf("%w: only the learner or an admin can delete a conversation", app_errors.ErrPermission)
	}
	slog.Info("Deleting conversation", "conversation_id", id, "user_id", user.ID)
	if err := s.repo.DeleteConversation(ctx, id); err != nil {
		return translateRepoError(err, id)
	}
	return nil
}

// visibleConversation loads id and checks the user may read it. Invisible
// conversations are reported as not found.
func (s *ChatService) visibleConversation(ctx context.Context, user model.User, id string) (*model.Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		return nil, translateRepoError(err, id)
	}
	ok, err := s.canView(ctx, user, conv)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", app_errors.ErrNotFound, id)
	}
	return conv, nil
}

func (s *ChatService) canView(ctx context.Context, user model.User, conv *model.Conversation) (bool, error) {
	switch user.Role {
	case model.RoleAdmin:
		return true, nil
	case model.RoleLearner:
		return conv.LearnerID == user.ID, nil
	case model.RoleTeacher, model.RoleParent:
		profile, err := s.repo.GetLearnerProfile(ctx, conv.LearnerID)
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("could not load learner profile: %w", err)
		}
		link := profile.TeacherID
		if user.Role == model.RoleParent {
			link = profile.ParentID
		}
		return link != nil && *link == user.ID, nil
	default:
		return false, nil
	}
}

func translateRepoError(err error, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: conversation %s", app_errors.ErrNotFound, id)
	}
	return err
}
