package model

import (
	"encoding/json"
	"time"
)

// Syncback request status constants.
const (
	RequestStatusNew       = "new"
	RequestStatusSucceeded = "succeeded"
	RequestStatusFailed    = "failed"
)

// SyncbackRequest is a queued unit of work that pushes a local change to
// the provider. Kind selects the handler and Props carries its input.
type SyncbackRequest struct {
	ID        string          `json:"id" db:"id"`
	AccountID string          `json:"account_id" db:"account_id"`
	Kind      string          `json:"kind" db:"kind"`
	Props     json.RawMessage `json:"props" db:"props"`
	Status    string          `json:"status" db:"status"`
	Error     string          `json:"error" db:"error"`
	Attempts  int             `json:"attempts" db:"attempts"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
