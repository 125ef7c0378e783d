package models

import "time"

// BaseModel holds the identity and row timestamps of a ledger record.
type BaseModel struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressTracking records when a run started, when it last moved and the
// error that ended it, if any.
type ProgressTracking struct {
	StartTime      time.Time `json:"start_time"`
	LastUpdateTime time.Time `json:"last_update_time"`
	Error          string    `json:"error,omitempty"`
}
