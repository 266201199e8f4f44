package domain

import "time"

type FailureKind string

const (
	FailureReplication FailureKind = "replication"
	FailureDispatch    FailureKind = "dispatch"
	FailurePublish     FailureKind = "publish"
	FailureEvaluation  FailureKind = "evaluation"
)

// FailureRecord describes a downstream failure that exhausted its retries.
type FailureRecord struct {
	Kind       FailureKind `json:"kind"`
	ItemID     string      `json:"item_id"`
	EventID    string      `json:"event_id,omitempty"`
	Attempts   int         `json:"attempts"`
	Error      string      `json:"error"`
	OccurredAt time.Time   `json:"occurred_at"`
}
