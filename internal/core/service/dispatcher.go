package service

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/port"
)

const DefaultAlertFunction = "StockAlertFunction"

// NotificationDispatcher hands alert events to the notification service.
// It makes a single attempt; retrying is up to the caller.
type NotificationDispatcher struct {
	notifier     port.NotificationService
	deliveries   port.DeliveryLog
	functionName string
}

func NewNotificationDispatcher(notifier port.NotificationService, deliveries port.DeliveryLog, functionName string) *NotificationDispatcher {
	if functionName == "" {
		functionName = DefaultAlertFunction
	}
	return &NotificationDispatcher{
		notifier:     notifier,
		deliveries:   deliveries,
		functionName: functionName,
	}
}

// Dispatch invokes the alert function once. An event id that was already
// accepted is skipped without error.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, event domain.AlertEvent) error {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return d.fail(event, errors.Wrap(err, "encode payload"))
	}

	claimed, err := d.deliveries.ClaimDelivery(ctx, event.EventID)
	if err != nil {
		return d.fail(event, errors.Wrap(err, "claim delivery"))
	}
	if !claimed {
		return nil
	}

	if err := d.notifier.Invoke(ctx, d.functionName, event.EventID, payload); err != nil {
		// Release with a fresh context: ctx may be the reason Invoke failed.
		if relErr := d.deliveries.ReleaseDelivery(context.WithoutCancel(ctx), event.EventID); relErr != nil {
			err = errors.Wrapf(err, "release delivery claim failed (%v)", relErr)
		}
		return d.fail(event, errors.Wrapf(err, "invoke %s", d.functionName))
	}
	return nil
}

func (d *NotificationDispatcher) fail(event domain.AlertEvent, cause error) error {
	return &domain.DispatchError{EventID: event.EventID, ItemID: event.ItemID, Attempts: 1, Cause: cause}
}
