package model

import "time"

// Lead is the qualification snapshot handed to the CRM sync path. The
// session remains the source of truth for conversation state; the lead is
// refreshed from it on every qualifying turn.
type Lead struct {
	ID                string           `db:"id" json:"id"`
	VisitorID         string           `db:"visitor_id" json:"visitorId"`
	Score             int              `db:"score" json:"score"`
	Category          ScoreCategory    `db:"category" json:"category"`
	Priority          Priority         `db:"priority" json:"priority"`
	Signals           ExtractedSignals `db:"signals" json:"signals"`
	Summary           string           `db:"summary" json:"summary"`
	BattleCard        *string          `db:"battle_card" json:"battleCard,omitempty"`
	CRMRecordID       *string          `db:"crm_record_id" json:"crmRecordId,omitempty"`
	SyncStatus        SyncStatus       `db:"sync_status" json:"syncStatus"`
	SyncError         *string          `db:"sync_error" json:"syncError,omitempty"`
	LastSyncAttemptAt *time.Time       `db:"last_sync_attempt_at" json:"lastSyncAttemptAt,omitempty"`
	CreatedAt         time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updatedAt"`
}

type UpsertLeadParams struct {
	ID         string
	VisitorID  string
	Score      int
	Category   ScoreCategory
	Priority   Priority
	Signals    ExtractedSignals
	Summary    string
	BattleCard *string
}
