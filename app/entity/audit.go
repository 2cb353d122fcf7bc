package entity

import "time"

type AuditRecord struct {
	ID string

	OrderID *string
	Actor   string
	Action  string

	OldStatus *string
	NewStatus *string

	Metadata map[string]string

	CreatedAt time.Time
}

// TimelineEntry IDs are deterministic composites of the event kind and a
// correlating ID, so replaying the same logical event appends nothing new.
type TimelineEntry struct {
	ID uint64

	OrderID string
	EntryID string

	Kind    string
	Message string

	OccurredAt time.Time
	CreatedAt  time.Time
}
