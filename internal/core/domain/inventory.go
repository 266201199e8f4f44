package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type InventoryItem struct {
	ItemID            string
	Name              string
	Description       string
	Quantity          int
	Price             decimal.Decimal
	Category          string
	Supplier          string
	WarehouseLocation string
	ImageURL          *string
	Version           int // bumped on every primary write
	LastUpdated       time.Time
	CreatedAt         time.Time
}

func (i InventoryItem) String() string {
	return fmt.Sprintf("%s (%s)", i.Name, i.ItemID)
}

// ReplicaRecord is the projection of an item kept in the secondary store.
// SyncedAt is stamped when the record is sent, not when the primary row was written.
type ReplicaRecord struct {
	ItemID   string
	Name     string
	Quantity int
	Price    string
	Category string
	Version  int
	SyncedAt time.Time
}

func NewReplicaRecord(item InventoryItem, syncedAt time.Time) ReplicaRecord {
	return ReplicaRecord{
		ItemID:   item.ItemID,
		Name:     item.Name,
		Quantity: item.Quantity,
		Price:    item.Price.StringFixed(2),
		Category: item.Category,
		Version:  item.Version,
		SyncedAt: syncedAt,
	}
}

// MutationEvent is emitted after a primary write has committed.
type MutationEvent struct {
	Item        InventoryItem
	CommittedAt time.Time

	// Ack, when set, is called once replication and alerting of the event
	// have finished, successfully or not.
	Ack func()
}
