package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/anooppandey17/virtual-teacher/internal/model"
)

type sqliteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) Repository {
	return &sqliteRepository{db: db}
}

const conversationColumns = `c.id, c.learner_id, c.title, c.prompt, c.created_at, c.updated_at,
	(SELECT m.text FROM messages m WHERE m.conversation_id = c.id ORDER BY m.created_at DESC, m.rowid DESC LIMIT 1)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var conv model.Conversation
	var last sql.NullString
	if err := row.Scan(&conv.ID, &conv.LearnerID, &conv.Title, &conv.Prompt, &conv.CreatedAt, &conv.UpdatedAt, &last); err != nil {
		return nil, err
	}
	if last.Valid {
		conv.LastMessage = &last.String
	}
	return &conv, nil
}

func (r *sqliteRepository) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	query := "INSERT INTO conversations (id, learner_id, title, prompt, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)"
	_, err := r.db.ExecContext(ctx, query, conv.ID, conv.LearnerID, conv.Title, conv.Prompt, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("could not insert conversation: %w", err)
	}
	return nil
}

func (r *sqliteRepository) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	query := "SELECT " + conversationColumns + " FROM conversations c WHERE c.id = ?"
	conv, err := scanConversation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return conv, nil
}

// ListConversations returns the conversations visible to scope, most
// recently updated first. Roles without visibility get an empty list.
func (r *sqliteRepository) ListConversations(ctx context.Context, scope Scope) ([]*model.Conversation, error) {
	query := "SELECT " + conversationColumns + " FROM conversations c"
	var args []any

	switch scope.Role {
	case model.RoleAdmin:
	case model.RoleLearner:
		query += " WHERE c.learner_id = ?"
		args = append(args, scope.UserID)
	case model.RoleTeacher:
		query += " WHERE c.learner_id IN (SELECT learner_id FROM learner_profiles WHERE teacher_id = ?)"
		args = append(args, scope.UserID)
	case model.RoleParent:
		query += " WHERE c.learner_id IN (SELECT learner_id FROM learner_profiles WHERE parent_id = ?)"
		args = append(args, scope.UserID)
	default:
		return []*model.Conversation{}, nil
	}
	query += " ORDER BY c.updated_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := []*model.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (r *sqliteRepository) DeleteConversation(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteRepository) AddMessage(ctx context.Context, msg *model.Message) (time.Time, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("could not begin transaction: %w", err)
	}
	// Ensure transaction is rolled back on error
	defer func() { _ = tx.Rollback() }()

	var current time.Time
	err = tx.QueryRowContext(ctx, "SELECT updated_at FROM conversations WHERE id = ?", msg.ConversationID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("could not read conversation timestamp: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO messages (id, conversation_id, role, text, created_at) VALUES (?, ?, ?, ?, ?)",
		msg.ID, msg.ConversationID, msg.Role, msg.Text, msg.CreatedAt,
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("could not insert message: %w", err)
	}

	touched := msg.CreatedAt.UTC()
	if !touched.After(current) {
		touched = current.UTC().Add(time.Microsecond)
	}
	_, err = tx.ExecContext(ctx, "UPDATE conversations SET updated_at = ? WHERE id = ?", touched, msg.ConversationID)
	if err != nil {
		return time.Time{}, fmt.Errorf("could not update conversation timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("could not commit message: %w", err)
	}
	return touched, nil
}

func (r *sqliteRepository) GetMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	query := `
		SELECT id, conversation_id, role, text, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, rowid ASC
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *sqliteRepository) GetLearnerProfile(ctx context.Context, learnerID string) (*model.LearnerProfile, error) {
	query := "SELECT learner_id, teacher_id, parent_id FROM learner_profiles WHERE learner_id = ?"
	var profile model.LearnerProfile
	var teacherID, parentID sql.NullString
	err := r.db.QueryRowContext(ctx, query, learnerID).Scan(&profile.LearnerID, &teacherID, &parentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if teacherID.Valid {
		profile.TeacherID = &teacherID.String
	}
	if parentID.Valid {
		profile.ParentID = &parentID.String
	}
	return &profile, nil
}

func (r *sqliteRepository) UpsertLearnerProfile(ctx context.Context, profile *model.LearnerProfile) error {
	query := `
		INSERT INTO learner_profiles (learner_id, teacher_id, parent_id) VALUES (?, ?, ?)
		ON CONFLICT(learner_id) DO UPDATE SET teacher_id = excluded.teacher_id, parent_id = excluded.parent_id
	`
	_, err := r.db.ExecContext(ctx, query, profile.LearnerID, nullable(profile.TeacherID), nullable(profile.ParentID))
	return err
}

func nullable(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
