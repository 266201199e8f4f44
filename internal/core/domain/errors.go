package domain

import (
	"errors"
	"fmt"
)

var (
	ErrItemNotFound = errors.New("inventory item not found")
	ErrRuleNotFound = errors.New("stock alert not found")
	ErrRuleExists   = errors.New("stock alert already exists for item")

	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnversionedItem   = errors.New("item snapshot has no version")
)

// ReplicationError reports that the secondary store could not be updated.
type ReplicationError struct {
	ItemID   string
	Attempts int
	Cause    error
}

func (e *ReplicationError) Error() string {
	return fmt.Sprintf("replicate item %s: %d attempt(s): %v", e.ItemID, e.Attempts, e.Cause)
}

func (e *ReplicationError) Unwrap() error { return e.Cause }

// DispatchError reports that the notification service did not accept an alert.
type DispatchError struct {
	EventID  string
	ItemID   string
	Attempts int
	Cause    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch alert %s for item %s: %d attempt(s): %v", e.EventID, e.ItemID, e.Attempts, e.Cause)
}

func (e *DispatchError) Unwrap() error { return e.Cause }

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
