package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

func testItem(itemID string, quantity, version int) domain.InventoryItem {
	return domain.InventoryItem{
		ItemID:      itemID,
		Name:        "Widget " + itemID,
		Quantity:    quantity,
		Price:       decimal.RequireFromString("12.5"),
		Category:    "hardware",
		Version:     version,
		LastUpdated: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPropagate_WritesReplica(t *testing.T) {
	replicas := newMockReplicaStore()
	writer := NewReplicationWriter(replicas, fastRetry(3))
	synced := time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC)
	writer.now = func() time.Time { return synced }

	err := writer.Propagate(context.Background(), testItem("SKU-1", 20, 1))
	require.NoError(t, err)

	record, ok := replicas.get("SKU-1")
	require.True(t, ok)
	assert.Equal(t, "Widget SKU-1", record.Name)
	assert.Equal(t, 20, record.Quantity)
	assert.Equal(t, "12.50", record.Price)
	assert.Equal(t, "hardware", record.Category)
	assert.Equal(t, 1, record.Version)
	assert.Equal(t, synced, record.SyncedAt)
}

func TestPropagate_Idempotent(t *testing.T) {
	replicas := newMockReplicaStore()
	writer := NewReplicationWriter(replicas, fastRetry(3))
	item := testItem("SKU-1", 7, 3)

	require.NoError(t, writer.Propagate(context.Background(), item))
	first, _ := replicas.get("SKU-1")

	require.NoError(t, writer.Propagate(context.Background(), item))
	second, _ := replicas.get("SKU-1")

	assert.Equal(t, first.Quantity, second.Quantity)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.SyncedAt, second.SyncedAt)
}

func TestPropagate_StaleVersionIgnored(t *testing.T) {
	replicas := newMockReplicaStore()
	writer := NewReplicationWriter(replicas, fastRetry(3))

	require.NoError(t, writer.Propagate(context.Background(), testItem("SKU-1", 5, 4)))
	require.NoError(t, writer.Propagate(context.Background(), testItem("SKU-1", 9, 3)))

	record, _ := replicas.get("SKU-1")
	assert.Equal(t, 5, record.Quantity)
	assert.Equal(t, 4, record.Version)
}

func TestPropagate_RetriesTransientFailure(t *testing.T) {
	replicas := newMockReplicaStore()
	replicas.failures = 2
	writer := NewReplicationWriter(replicas, fastRetry(5))

	require.NoError(t, writer.Propagate(context.Background(), testItem("SKU-1", 5, 1)))
	assert.Equal(t, 3, replicas.callCount())

	_, ok := replicas.get("SKU-1")
	assert.True(t, ok)
}

func TestPropagate_RetryExhaustion(t *testing.T) {
	replicas := newMockReplicaStore()
	replicas.failures = -1
	writer := NewReplicationWriter(replicas, fastRetry(4))

	err := writer.Propagate(context.Background(), testItem("SKU-1", 5, 1))

	var replErr *domain.ReplicationError
	require.True(t, errors.As(err, &replErr))
	assert.Equal(t, "SKU-1", replErr.ItemID)
	assert.Equal(t, 4, replErr.Attempts)
	assert.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, 4, replicas.callCount())
}

func TestPropagate_RejectsUnversionedItem(t *testing.T) {
	replicas := newMockReplicaStore()
	writer := NewReplicationWriter(replicas, fastRetry(4))

	require.NoError(t, writer.Propagate(context.Background(), testItem("SKU-1", 20, 1)))

	err := writer.Propagate(context.Background(), testItem("SKU-1", 5, 0))

	var replErr *domain.ReplicationError
	require.True(t, errors.As(err, &replErr))
	assert.ErrorIs(t, err, domain.ErrUnversionedItem)
	assert.Equal(t, 1, replErr.Attempts)
	assert.Equal(t, 1, replicas.callCount())

	record, _ := replicas.get("SKU-1")
	assert.Equal(t, 20, record.Quantity)
}
