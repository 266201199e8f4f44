package service

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/port"
)

// AlertService evaluates the stock alerts of a freshly written item and
// dispatches the ones that fire.
type AlertService struct {
	rules      port.RuleRepository
	evaluator  *AlertEvaluator
	dispatcher *NotificationDispatcher
	failures   port.FailureLog
	retry      RetryPolicy
	log        *zap.Logger
}

func NewAlertService(
	rules port.RuleRepository,
	evaluator *AlertEvaluator,
	dispatcher *NotificationDispatcher,
	failures port.FailureLog,
	retry RetryPolicy,
	log *zap.Logger,
) *AlertService {
	return &AlertService{
		rules:      rules,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		failures:   failures,
		retry:      retry,
		log:        log,
	}
}

// Process runs the alert rules of item. A rule's triggered flag is claimed with
// a compare-and-set before its event is dispatched, so concurrent evaluations
// of one crossing produce at most one notification.
func (s *AlertService) Process(ctx context.Context, item domain.InventoryItem) error {
	rules, err := s.rules.ListRules(ctx, item.ItemID)
	if err != nil {
		err = errors.Wrapf(err, "list alerts for item %s", item.ItemID)
		s.evaluationFailed(ctx, item, err)
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	for _, ruleID := range s.evaluator.Recovered(item, rules) {
		ok, err := s.rules.ResetTriggered(ctx, ruleID)
		if err != nil {
			s.log.Warn("failed to rearm alert", zap.Int64("rule_id", ruleID), zap.Error(err))
			continue
		}
		if ok {
			s.log.Info("alert rearmed", zap.Int64("rule_id", ruleID), zap.String("item_id", item.ItemID))
		}
	}

	var firstErr error
	for _, event := range s.evaluator.Evaluate(item, rules) {
		won, err := s.rules.MarkTriggered(ctx, event.RuleID)
		if err != nil {
			// Rule stays untriggered, the next write of the item re-evaluates it.
			err = errors.Wrapf(err, "mark alert %d triggered", event.RuleID)
			s.evaluationFailed(ctx, item, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !won {
			s.log.Debug("alert already triggered", zap.Int64("rule_id", event.RuleID))
			continue
		}

		if err := s.deliver(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (s *AlertService) deliver(ctx context.Context, event domain.AlertEvent) error {
	attempts, err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.dispatcher.Dispatch(ctx, event)
	})
	if err == nil {
		s.log.Info("stock alert dispatched",
			zap.String("event_id", event.EventID),
			zap.String("item_id", event.ItemID),
			zap.Int("quantity", event.CurrentQuantity),
			zap.Int("threshold", event.Threshold),
		)
		return nil
	}

	cause := err
	var dispatchErr *domain.DispatchError
	if errors.As(err, &dispatchErr) {
		cause = dispatchErr.Cause
	}
	failed := &domain.DispatchError{EventID: event.EventID, ItemID: event.ItemID, Attempts: attempts, Cause: cause}

	reportFailure(ctx, s.failures, s.log, domain.FailureRecord{
		Kind:     domain.FailureDispatch,
		ItemID:   event.ItemID,
		EventID:  event.EventID,
		Attempts: attempts,
		Error:    failed.Error(),
	})
	return failed
}

func (s *AlertService) evaluationFailed(ctx context.Context, item domain.InventoryItem, err error) {
	reportFailure(ctx, s.failures, s.log, domain.FailureRecord{
		Kind:     domain.FailureEvaluation,
		ItemID:   item.ItemID,
		Attempts: 1,
		Error:    err.Error(),
	})
}
