package port

import (
	"context"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

// ItemRepository is the authoritative store of inventory items.
type ItemRepository interface {
	// SaveItem inserts or updates an item and returns the committed snapshot
	SaveItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)

	// AdjustQuantity applies delta to the stored quantity and returns the committed snapshot.
	// Unless allowNegative is set, a delta that would take quantity below zero fails with ErrInsufficientStock
	AdjustQuantity(ctx context.Context, itemID string, delta int, allowNegative bool) (*domain.InventoryItem, error)

	// SetImageURL records the retrieval URL of an uploaded product image
	SetImageURL(ctx context.Context, itemID, url string) (*domain.InventoryItem, error)

	GetItem(ctx context.Context, itemID string) (*domain.InventoryItem, error)

	// ListItems returns items ordered by last update, newest first; empty category means all
	ListItems(ctx context.Context, category string, limit int) ([]domain.InventoryItem, error)
}

// RuleRepository persists stock alert rules.
type RuleRepository interface {
	CreateRule(ctx context.Context, rule domain.AlertRule) (*domain.AlertRule, error)

	// ListRules returns the rules of an item in insertion order
	ListRules(ctx context.Context, itemID string) ([]domain.AlertRule, error)

	// MarkTriggered flips triggered false->true, returns false if another writer already did
	MarkTriggered(ctx context.Context, ruleID int64) (bool, error)

	// ResetTriggered flips triggered true->false, returns false if the rule was not triggered
	ResetTriggered(ctx context.Context, ruleID int64) (bool, error)
}
