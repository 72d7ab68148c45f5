package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	app_errors "github.com/anooppandey17/virtual-teacher/internal/errors"
	"github.com/anooppandey17/virtual-teacher/internal/model"
	"github.com/anooppandey17/virtual-teacher/internal/repository"
)

// persistTimeout bounds a single turn write once it is detached from the
// request that produced it.
const persistTimeout = 10 * time.Second

// TurnStore appends turn halves to a conversation.
type TurnStore struct {
	repo repository.Repository
	now  func() time.Time
}

func NewTurnStore(repo repository.Repository) *TurnStore {
	return &TurnStore{repo: repo, now: time.Now}
}

// RecordUserTurn stores the learner's message and advances conv.UpdatedAt.
func (s *TurnStore) RecordUserTurn(ctx context.Context, conv *model.Conversation, text string) (*model.Message, error) {
	return s.record(ctx, conv, model.MessageRoleUser, text)
}

// RecordAssistantTurn stores the tutor's reply. Empty text is not stored
// and yields a nil message.
func (s *TurnStore) RecordAssistantTurn(ctx context.Context, conv *model.Conversation, text string) (*model.Message, error) {
	if text == "" {
		return nil, nil
	}
	return s.record(ctx, conv, model.MessageRoleAssistant, text)
}

func (s *TurnStore) record(ctx context.Context, conv *model.Conversation, role model.MessageRole, text string) (*model.Message, error) {
	msg := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           role,
		Text:           text,
		CreatedAt:      s.now().UTC(),
	}
	touched, err := s.repo.AddMessage(ctx, msg)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: conversation %s", app_errors.ErrNotFound, conv.ID)
		}
		return nil, fmt.Errorf("could not record %s message: %w", role, err)
	}
	conv.UpdatedAt = touched
	last := text
	conv.LastMessage = &last
	return msg, nil
}

// ReplyBuffer accumulates released fragments of one assistant reply and
// persists them exactly once.
type ReplyBuffer struct {
	store *TurnStore
	conv  *model.Conversation

	mu  sync.Mutex
	buf strings.Builder

	once sync.Once
	msg  *model.Message
	err  error
}

func (s *TurnStore) NewReplyBuffer(conv *model.Conversation) *ReplyBuffer {
	return &ReplyBuffer{store: s, conv: conv}
}

func (b *ReplyBuffer) Append(fragment string) {
	b.mu.Lock()
	b.buf.WriteString(fragment)
	b.mu.Unlock()
}

func (b *ReplyBuffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Commit stores the accumulated text as the assistant turn. Only the first
// call writes; later calls return the first result. The write runs on a
// context detached from ctx's cancellation, so a departed client does not
// lose the reply.
func (b *ReplyBuffer) Commit(ctx context.Context) (*model.Message, error) {
	b.once.Do(func() {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		b.msg, b.err = b.store.RecordAssistantTurn(writeCtx, b.conv, b.Text())
	})
	return b.msg, b.err
}
