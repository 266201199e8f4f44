package service

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/port"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// InventoryService is the single write entry point of the primary store.
// Every committed write is published for replication and alerting; downstream
// trouble never fails the write.
type InventoryService struct {
	items     port.ItemRepository
	rules     port.RuleRepository
	publisher port.MutationPublisher
	failures  port.FailureLog
	validator Validator
	log       *zap.Logger
}

func NewInventoryService(
	items port.ItemRepository,
	rules port.RuleRepository,
	publisher port.MutationPublisher,
	failures port.FailureLog,
	validator Validator,
	log *zap.Logger,
) *InventoryService {
	return &InventoryService{
		items:     items,
		rules:     rules,
		publisher: publisher,
		failures:  failures,
		validator: validator,
		log:       log,
	}
}

func (s *InventoryService) Save(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	if err := s.validator.ValidateItem(item); err != nil {
		return nil, err
	}

	saved, err := s.items.SaveItem(ctx, item)
	if err != nil {
		return nil, errors.Wrapf(err, "save item %s", item.ItemID)
	}

	s.publish(ctx, *saved)
	return saved, nil
}

func (s *InventoryService) AdjustQuantity(ctx context.Context, itemID string, delta int) (*domain.InventoryItem, error) {
	saved, err := s.items.AdjustQuantity(ctx, itemID, delta, s.validator.AllowNegativeQuantity)
	if errors.Is(err, domain.ErrInsufficientStock) {
		return nil, &domain.ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "adjust quantity of %s", itemID)
	}

	s.publish(ctx, *saved)
	return saved, nil
}

// SetImageURL stores the retrieval URL of an image uploaded elsewhere.
func (s *InventoryService) SetImageURL(ctx context.Context, itemID, url string) (*domain.InventoryItem, error) {
	if strings.TrimSpace(url) == "" {
		return nil, &domain.ValidationError{Field: "image_url", Reason: "must not be empty"}
	}

	saved, err := s.items.SetImageURL(ctx, itemID, url)
	if err != nil {
		return nil, errors.Wrapf(err, "set image of %s", itemID)
	}

	s.publish(ctx, *saved)
	return saved, nil
}

func (s *InventoryService) Get(ctx context.Context, itemID string) (*domain.InventoryItem, error) {
	item, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrItemNotFound
	}
	return item, nil
}

func (s *InventoryService) List(ctx context.Context, category string, limit int) ([]domain.InventoryItem, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.items.ListItems(ctx, category, limit)
}

// AddAlertRule attaches an untriggered rule to an existing item. It is
// evaluated from the item's next write on.
func (s *InventoryService) AddAlertRule(ctx context.Context, itemID, alertType string, threshold int) (*domain.AlertRule, error) {
	if alertType == "" {
		alertType = domain.AlertTypeLowStock
	}
	if err := s.validator.ValidateRule(alertType, threshold); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, itemID); err != nil {
		return nil, err
	}

	rule, err := s.rules.CreateRule(ctx, domain.AlertRule{
		ItemID:    itemID,
		AlertType: alertType,
		Threshold: threshold,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create alert for %s", itemID)
	}
	return rule, nil
}

func (s *InventoryService) publish(ctx context.Context, item domain.InventoryItem) {
	event := domain.MutationEvent{Item: item, CommittedAt: time.Now().UTC()}
	if err := s.publisher.Publish(ctx, event); err != nil {
		reportFailure(ctx, s.failures, s.log, domain.FailureRecord{
			Kind:   domain.FailurePublish,
			ItemID: item.ItemID,
			Error:  err.Error(),
		})
	}
}
