package model

import "time"

// ConversationTurn is append-only: rows are never mutated after insert.
type ConversationTurn struct {
	ID             string    `db:"id" json:"id"`
	SessionID      string    `db:"session_id" json:"sessionId"`
	SequenceNumber int       `db:"sequence_number" json:"sequenceNumber"`
	Speaker        Speaker   `db:"speaker" json:"speaker"`
	Text           string    `db:"text" json:"text"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

type AppendTurnParams struct {
	ID             string
	SessionID      string
	SequenceNumber int
	Speaker        Speaker
	Text           string
}
