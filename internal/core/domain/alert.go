package domain

import "time"

const AlertTypeLowStock = "low_stock"

type AlertRule struct {
	ID        int64
	ItemID    string
	AlertType string
	Threshold int
	Triggered bool
	CreatedAt time.Time
}

type AlertEvent struct {
	EventID         string
	RuleID          int64
	AlertType       string
	ItemID          string
	ItemName        string
	CurrentQuantity int
	Threshold       int
	OccurredAt      time.Time
}

// Payload is the flat key/value form handed to the notification service.
func (e AlertEvent) Payload() map[string]any {
	return map[string]any{
		"item_id":          e.ItemID,
		"item_name":        e.ItemName,
		"current_quantity": e.CurrentQuantity,
		"threshold":        e.Threshold,
	}
}
