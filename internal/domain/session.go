package domain

import "time"

// State is the lifecycle state of one import session.
type State string

const (
	StateCollecting         State = "collecting"
	StatePreviewing         State = "previewing"
	StateImporting          State = "importing"
	StateCompleted          State = "completed"
	StatePartiallyCompleted State = "partially_completed"
	StateUndone             State = "undone"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateUndone }

// SessionTotals summarizes one import.
type SessionTotals struct {
	Valid   int `json:"valid"`
	Skipped int `json:"skipped"`
	Written int `json:"written"`
}

// ImportSession is the receipt persisted once per successful (or partially successful) import.
// It is never mutated after creation; undo writes a separate UndoReceipt.
type ImportSession struct {
	ID           string        `json:"id"`
	UserID       string        `json:"userId"`
	CreatedAt    time.Time     `json:"createdAt"`
	TemplateType TemplateType  `json:"templateType"`
	FileName     string        `json:"fileName"`
	Totals       SessionTotals `json:"totals"`
	Status       State         `json:"status"`
}

// UndoReceipt records that an import session was reversed.
type UndoReceipt struct {
	SessionID string    `json:"sessionId"`
	UndoneBy  string    `json:"undoneBy"`
	UndoneAt  time.Time `json:"undoneAt"`
	Records   int       `json:"records"`
}

// PostedLoad is one entry of the device-scoped "my recent uploads" list.
type PostedLoad struct {
	ID           string    `json:"id"`
	BulkImportID string    `json:"bulkImportId"`
	Title        string    `json:"title"`
	Origin       string    `json:"origin,omitempty"`
	Destination  string    `json:"destination,omitempty"`
	PickupDate   string    `json:"pickupDate,omitempty"`
	Rate         *float64  `json:"rate,omitempty"`
	PostedAt     time.Time `json:"postedAt"`
}
