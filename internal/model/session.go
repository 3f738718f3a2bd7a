package model

import (
	"time"
)

type VisitorSession struct {
	ID           string            `db:"id" json:"id"`
	VisitorID    string            `db:"visitor_id" json:"visitorId"`
	Status       SessionStatus     `db:"status" json:"status"`
	Stage        ConversationStage `db:"conversation_stage" json:"conversationStage"`
	VisitCount   int               `db:"visit_count" json:"visitCount"`
	Signals      ExtractedSignals  `db:"accumulated_signals" json:"accumulatedSignals"`
	Score        int               `db:"score" json:"score"`
	Category     ScoreCategory     `db:"category" json:"category"`
	CreatedAt    time.Time         `db:"created_at" json:"createdAt"`
	LastActiveAt time.Time         `db:"last_active_at" json:"lastActiveAt"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updatedAt"`
}

type CreateSessionParams struct {
	ID        string
	VisitorID string
	Signals   ExtractedSignals
}

// SessionUpdateParams carries the post-turn mutation written in one statement
// so no partial merge is ever observable.
type SessionUpdateParams struct {
	VisitorID string
	Stage     ConversationStage
	Signals   ExtractedSignals
	Score     int
	Category  ScoreCategory
	Status    SessionStatus
}
