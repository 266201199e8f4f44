package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/port"
)

// reportFailure logs a failure that exhausted its retries and pushes it to the
// operator failure log. A broken failure log is logged, never returned.
func reportFailure(ctx context.Context, failures port.FailureLog, log *zap.Logger, record domain.FailureRecord) {
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now().UTC()
	}

	log.Error("downstream failure surfaced",
		zap.String("kind", string(record.Kind)),
		zap.String("item_id", record.ItemID),
		zap.String("event_id", record.EventID),
		zap.Int("attempts", record.Attempts),
		zap.String("error", record.Error),
	)

	if failures == nil {
		return
	}
	if err := failures.RecordFailure(context.WithoutCancel(ctx), record); err != nil {
		log.Error("CRITICAL failed to record failure", zap.String("item_id", record.ItemID), zap.Error(err))
	}
}
