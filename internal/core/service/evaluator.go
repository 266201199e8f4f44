package service

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

// RearmPolicy controls whether a triggered rule can fire again.
type RearmPolicy int

const (
	// RearmNever keeps a rule triggered forever once it fired.
	RearmNever RearmPolicy = iota
	// RearmOnRecovery resets a triggered rule when quantity rises above its threshold.
	RearmOnRecovery
)

func ParseRearmPolicy(s string) (RearmPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "never":
		return RearmNever, nil
	case "on_recovery":
		return RearmOnRecovery, nil
	}
	return RearmNever, errors.Errorf("unknown rearm policy %q", s)
}

func (p RearmPolicy) String() string {
	if p == RearmOnRecovery {
		return "on_recovery"
	}
	return "never"
}

var alertEventNamespace = uuid.MustParse("6f1d3c7e-2b8a-4f0e-9a55-3c1b7d2e9f40")

// AlertEvaluator decides which rules of an item fire for a given snapshot.
// It never performs I/O.
type AlertEvaluator struct {
	rearm RearmPolicy
}

func NewAlertEvaluator(rearm RearmPolicy) *AlertEvaluator {
	return &AlertEvaluator{rearm: rearm}
}

// Evaluate returns one event per untriggered rule whose threshold the item is at
// or below, in rule order, and marks those rules triggered in place. Persisting
// the flag is left to the caller.
func (e *AlertEvaluator) Evaluate(item domain.InventoryItem, rules []domain.AlertRule) []domain.AlertEvent {
	var events []domain.AlertEvent
	for i := range rules {
		rule := &rules[i]
		if rule.ItemID != item.ItemID || rule.Triggered || item.Quantity > rule.Threshold {
			continue
		}
		rule.Triggered = true
		events = append(events, domain.AlertEvent{
			EventID:         eventID(rule.ID, item.Version),
			RuleID:          rule.ID,
			AlertType:       rule.AlertType,
			ItemID:          item.ItemID,
			ItemName:        item.Name,
			CurrentQuantity: item.Quantity,
			Threshold:       rule.Threshold,
			OccurredAt:      item.LastUpdated,
		})
	}
	return events
}

// Recovered clears the triggered flag, in place, of rules the item has climbed
// back above, and returns their ids. It is a no-op under RearmNever.
func (e *AlertEvaluator) Recovered(item domain.InventoryItem, rules []domain.AlertRule) []int64 {
	if e.rearm != RearmOnRecovery {
		return nil
	}
	var ids []int64
	for i := range rules {
		rule := &rules[i]
		if rule.ItemID == item.ItemID && rule.Triggered && item.Quantity > rule.Threshold {
			rule.Triggered = false
			ids = append(ids, rule.ID)
		}
	}
	return ids
}

// eventID is stable for one rule and one item version, so duplicate
// evaluations of the same write produce the same id.
func eventID(ruleID int64, version int) string {
	return uuid.NewSHA1(alertEventNamespace, []byte(fmt.Sprintf("%d:%d", ruleID, version))).String()
}
