package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/port"
)

// ReplicationWriter projects committed items into the secondary store.
type ReplicationWriter struct {
	replicas port.ReplicaStore
	retry    RetryPolicy
	now      func() time.Time
}

func NewReplicationWriter(replicas port.ReplicaStore, retry RetryPolicy) *ReplicationWriter {
	return &ReplicationWriter{
		replicas: replicas,
		retry:    retry,
		now:      time.Now,
	}
}

// Propagate upserts the replica of item, retrying per the writer's policy.
// The primary write is never affected by the outcome.
func (w *ReplicationWriter) Propagate(ctx context.Context, item domain.InventoryItem) error {
	attempts, err := w.retry.Do(ctx, func(ctx context.Context) error {
		// Without a version the store's ordering guard cannot tell this write
		// apart from the next one.
		if item.Version < 1 {
			return backoff.Permanent(domain.ErrUnversionedItem)
		}
		return w.replicas.UpsertReplica(ctx, domain.NewReplicaRecord(item, w.now().UTC()))
	})
	if err != nil {
		return &domain.ReplicationError{ItemID: item.ItemID, Attempts: attempts, Cause: err}
	}
	return nil
}
