package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/leadwise/intel-server-go/internal/model"
)

type SessionRepository interface {
	FindByVisitorID(ctx context.Context, visitorID string) (*model.VisitorSession, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.VisitorSession, error)
	// Reactivate transitions a timed-out session back to active: increments
	// visit_count, resets the conversation stage, preserves accumulated
	// signals.
	Reactivate(ctx context.Context, visitorID string) (*model.VisitorSession, error)
	Touch(ctx context.Context, visitorID string, now time.Time) error
	// UpdateAfterTurn writes stage, signals, score and status in a single
	// statement so callers never observe a partial merge.
	UpdateAfterTurn(ctx context.Context, params model.SessionUpdateParams) (*model.VisitorSession, error)
	MarkTimedOutBefore(ctx context.Context, cutoff time.Time) (int64, error)
	MarkSynced(ctx context.Context, visitorID string) error
}

type sessionRepo struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) FindByVisitorID(ctx context.Context, visitorID string) (*model.VisitorSession, error) {
	var session model.VisitorSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM visitor_sessions WHERE visitor_id = $1
	`, visitorID)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.VisitorSession, error) {
	var session model.VisitorSession
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO visitor_sessions
			(id, visitor_id, status, conversation_stage, visit_count, accumulated_signals)
		VALUES ($1, $2, 'active', 'greeting', 1, $3)
		RETURNING *
	`, params.ID, params.VisitorID, params.Signals)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Reactivate(ctx context.Context, visitorID string) (*model.VisitorSession, error) {
	var session model.VisitorSession
	err := r.db.GetContext(ctx, &session, `
		UPDATE visitor_sessions SET
			status = 'active',
			conversation_stage = 'greeting',
			visit_count = visit_count + 1,
			last_active_at = NOW(),
			updated_at = NOW()
		WHERE visitor_id = $1
		RETURNING *
	`, visitorID)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Touch(ctx context.Context, visitorID string, now time.Time) error {
	// GREATEST keeps last_active_at monotonically non-decreasing under
	// racing touches.
	_, err := r.db.ExecContext(ctx, `
		UPDATE visitor_sessions SET
			last_active_at = GREATEST(last_active_at, $2),
			updated_at = NOW()
		WHERE visitor_id = $1
	`, visitorID, now)
	return err
}

func (r *sessionRepo) UpdateAfterTurn(ctx context.Context, params model.SessionUpdateParams) (*model.VisitorSession, error) {
	var session model.VisitorSession
	err := r.db.GetContext(ctx, &session, `
		UPDATE visitor_sessions SET
			conversation_stage = $2,
			accumulated_signals = $3,
			score = $4,
			category = $5,
			status = $6,
			last_active_at = GREATEST(last_active_at, NOW()),
			updated_at = NOW()
		WHERE visitor_id = $1
		RETURNING *
	`, params.VisitorID, params.Stage, params.Signals, params.Score, params.Category, params.Status)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) MarkTimedOutBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE visitor_sessions SET
			status = 'timed_out',
			updated_at = NOW()
		WHERE status = 'active' AND last_active_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) MarkSynced(ctx context.Context, visitorID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE visitor_sessions SET
			status = 'synced',
			updated_at = NOW()
		WHERE visitor_id = $1 AND status = 'qualified'
	`, visitorID)
	return err
}
