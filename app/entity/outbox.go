package entity

import "time"

type OutboxKind string

const (
	OutboxKindTimeline     OutboxKind = "timeline"
	OutboxKindAudit        OutboxKind = "audit"
	OutboxKindNotification OutboxKind = "notification"
)

const (
	OutboxStatusPending   int32 = 1
	OutboxStatusSucceeded int32 = 10
	OutboxStatusDead      int32 = 20
)

// OutboxTask is a side-effect intent committed in the same transaction as
// the order mutation that produced it. A dispatch job delivers tasks
// independently; exhausted tasks stay visible with status dead.
type OutboxTask struct {
	ID uint64

	Kind    OutboxKind
	OrderID *string

	PayloadJSON string

	Status        int32
	Attempts      int32
	NextAttemptAt *time.Time
	LastError     *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
