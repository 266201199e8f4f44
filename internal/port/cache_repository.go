package port

import (
	"context"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

// ReplicaStore is the key-value table holding item projections.
type ReplicaStore interface {
	// UpsertReplica puts the record by item id; a record not newer than the stored one is ignored
	UpsertReplica(ctx context.Context, record domain.ReplicaRecord) error
}

// DeliveryLog remembers which alert events were accepted by the notification service.
type DeliveryLog interface {
	// ClaimDelivery returns false if the event was already claimed
	ClaimDelivery(ctx context.Context, eventID string) (bool, error)

	// ReleaseDelivery drops a claim after a failed invocation
	ReleaseDelivery(ctx context.Context, eventID string) error
}

// FailureLog is the operator-visible channel for exhausted retries.
type FailureLog interface {
	RecordFailure(ctx context.Context, record domain.FailureRecord) error
	RecentFailures(ctx context.Context, limit int) ([]domain.FailureRecord, error)
}
