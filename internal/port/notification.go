package port

import (
	"context"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

// NotificationService invokes a remote function asynchronously.
// Invoke returns once the request is accepted; the function's own processing is not awaited.
type NotificationService interface {
	Invoke(ctx context.Context, functionName, key string, payload []byte) error
}

// MutationPublisher hands committed item snapshots to downstream consumers.
type MutationPublisher interface {
	Publish(ctx context.Context, event domain.MutationEvent) error
}
