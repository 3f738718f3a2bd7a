package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/leadwise/intel-server-go/internal/model"
)

type LeadRepository interface {
	FindByVisitorID(ctx context.Context, visitorID string) (*model.Lead, error)
	// UpsertForVisitor refreshes the qualification snapshot. Keyed by
	// visitor_id so repeated qualifying turns never create duplicates.
	UpsertForVisitor(ctx context.Context, params model.UpsertLeadParams) (*model.Lead, error)
	TopByScore(ctx context.Context, limit int) ([]model.Lead, error)
	MarkSynced(ctx context.Context, visitorID, crmRecordID string) error
	MarkSyncFailed(ctx context.Context, visitorID, syncError string) error
	MarkSyncPending(ctx context.Context, visitorID string) error
	FindPendingSync(ctx context.Context, limit int) ([]model.Lead, error)
}

type leadRepo struct {
	db *sqlx.DB
}

func NewLeadRepository(db *sqlx.DB) LeadRepository {
	return &leadRepo{db: db}
}

func (r *leadRepo) FindByVisitorID(ctx context.Context, visitorID string) (*model.Lead, error) {
	var lead model.Lead
	err := r.db.GetContext(ctx, &lead, `
		SELECT * FROM leads WHERE visitor_id = $1
	`, visitorID)
	return HandleNotFound(&lead, err)
}

func (r *leadRepo) UpsertForVisitor(ctx context.Context, params model.UpsertLeadParams) (*model.Lead, error) {
	var lead model.Lead
	err := r.db.GetContext(ctx, &lead, `
		INSERT INTO leads
			(id, visitor_id, score, category, priority, signals, summary, battle_card, sync_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
		ON CONFLICT (visitor_id) DO UPDATE SET
			score = EXCLUDED.score,
			category = EXCLUDED.category,
			priority = EXCLUDED.priority,
			signals = EXCLUDED.signals,
			summary = EXCLUDED.summary,
			battle_card = EXCLUDED.battle_card,
			sync_status = 'pending',
			updated_at = NOW()
		RETURNING *
	`, params.ID, params.VisitorID, params.Score, params.Category, params.Priority,
		params.Signals, params.Summary, params.BattleCard)
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *leadRepo) TopByScore(ctx context.Context, limit int) ([]model.Lead, error) {
	var leads []model.Lead
	err := r.db.SelectContext(ctx, &leads, `
		SELECT * FROM leads
		ORDER BY score DESC, updated_at DESC
		LIMIT $1
	`, limit)
	return leads, err
}

func (r *leadRepo) MarkSynced(ctx context.Context, visitorID, crmRecordID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE leads SET
			sync_status = 'synced',
			crm_record_id = $2,
			sync_error = NULL,
			last_sync_attempt_at = $3,
			updated_at = NOW()
		WHERE visitor_id = $1
	`, visitorID, crmRecordID, time.Now())
	return err
}

func (r *leadRepo) MarkSyncFailed(ctx context.Context, visitorID, syncError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE leads SET
			sync_status = 'failed',
			sync_error = $2,
			last_sync_attempt_at = $3,
			updated_at = NOW()
		WHERE visitor_id = $1
	`, visitorID, syncError, time.Now())
	return err
}

func (r *leadRepo) MarkSyncPending(ctx context.Context, visitorID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE leads SET
			sync_status = 'pending',
			updated_at = NOW()
		WHERE visitor_id = $1
	`, visitorID)
	return err
}

func (r *leadRepo) FindPendingSync(ctx context.Context, limit int) ([]model.Lead, error) {
	var leads []model.Lead
	err := r.db.SelectContext(ctx, &leads, `
		SELECT * FROM leads
		WHERE sync_status = 'pending'
		ORDER BY updated_at ASC
		LIMIT $1
	`, limit)
	return leads, err
}
