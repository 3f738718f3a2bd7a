package repository

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/leadwise/intel-server-go/internal/errors"
	"github.com/leadwise/intel-server-go/internal/model"
)

// Postgres unique_violation
const pqUniqueViolation = "23505"

type TurnRepository interface {
	// Append inserts a turn; the unique (session_id, sequence_number)
	// constraint turns a concurrent claim into a SequenceConflict.
	Append(ctx context.Context, params model.AppendTurnParams) (*model.ConversationTurn, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.ConversationTurn, error)
	MaxSequence(ctx context.Context, sessionID string) (int, error)
}

type turnRepo struct {
	db *sqlx.DB
}

func NewTurnRepository(db *sqlx.DB) TurnRepository {
	return &turnRepo{db: db}
}

func (r *turnRepo) Append(ctx context.Context, params model.AppendTurnParams) (*model.ConversationTurn, error) {
	var turn model.ConversationTurn
	err := r.db.GetContext(ctx, &turn, `
		INSERT INTO conversation_turns (id, session_id, sequence_number, speaker, text)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.ID, params.SessionID, params.SequenceNumber, params.Speaker, params.Text)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return nil, apperrors.SequenceConflict(params.SessionID, params.SequenceNumber)
		}
		return nil, err
	}
	return &turn, nil
}

func (r *turnRepo) ListBySession(ctx context.Context, sessionID string) ([]model.ConversationTurn, error) {
	var turns []model.ConversationTurn
	err := r.db.SelectContext(ctx, &turns, `
		SELECT * FROM conversation_turns
		WHERE session_id = $1
		ORDER BY sequence_number ASC
	`, sessionID)
	return turns, err
}

func (r *turnRepo) MaxSequence(ctx context.Context, sessionID string) (int, error) {
	var max int
	err := r.db.GetContext(ctx, &max, `
		SELECT COALESCE(MAX(sequence_number), 0) FROM conversation_turns WHERE session_id = $1
	`, sessionID)
	return max, err
}
