package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

var errUnavailable = errors.New("unavailable")

// Mock ReplicaStore, applies the same version guard as the Redis script
type mockReplicaStore struct {
	mu       sync.Mutex
	records  map[string]domain.ReplicaRecord
	calls    int
	failures int // upcoming calls to reject, -1 rejects forever
}

func newMockReplicaStore() *mockReplicaStore {
	return &mockReplicaStore{records: make(map[string]domain.ReplicaRecord)}
}

func (m *mockReplicaStore) UpsertReplica(ctx context.Context, record domain.ReplicaRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.failures != 0 {
		if m.failures > 0 {
			m.failures--
		}
		return errUnavailable
	}

	if current, ok := m.records[record.ItemID]; ok && current.Version >= record.Version {
		return nil
	}
	m.records[record.ItemID] = record
	return nil
}

func (m *mockReplicaStore) get(itemID string) (domain.ReplicaRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[itemID]
	return r, ok
}

func (m *mockReplicaStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Mock RuleRepository with compare-and-set on triggered
type mockRuleRepo struct {
	mu      sync.Mutex
	rules   map[int64]domain.AlertRule
	nextID  int64
	listErr error
	markErr error
	marked  int
}

func newMockRuleRepo() *mockRuleRepo {
	return &mockRuleRepo{rules: make(map[int64]domain.AlertRule)}
}

func (m *mockRuleRepo) CreateRule(ctx context.Context, rule domain.AlertRule) (*domain.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rules {
		if r.ItemID == rule.ItemID && r.AlertType == rule.AlertType && r.Threshold == rule.Threshold {
			return nil, domain.ErrRuleExists
		}
	}
	m.nextID++
	rule.ID = m.nextID
	rule.Triggered = false
	rule.CreatedAt = time.Now()
	m.rules[rule.ID] = rule
	return &rule, nil
}

func (m *mockRuleRepo) ListRules(ctx context.Context, itemID string) ([]domain.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}
	var rules []domain.AlertRule
	for _, r := range m.rules {
		if r.ItemID == itemID {
			rules = append(rules, r)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

func (m *mockRuleRepo) MarkTriggered(ctx context.Context, ruleID int64) (bool, error) {
	return m.setTriggered(ruleID, false, true)
}

func (m *mockRuleRepo) ResetTriggered(ctx context.Context, ruleID int64) (bool, error) {
	return m.setTriggered(ruleID, true, false)
}

func (m *mockRuleRepo) setTriggered(ruleID int64, from, to bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.markErr != nil {
		return false, m.markErr
	}
	r, ok := m.rules[ruleID]
	if !ok || r.Triggered != from {
		return false, nil
	}
	r.Triggered = to
	m.rules[ruleID] = r
	if to {
		m.marked++
	}
	return true, nil
}

func (m *mockRuleRepo) rule(id int64) domain.AlertRule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rules[id]
}

type invocation struct {
	functionName string
	key          string
	payload      []byte
}

// Mock NotificationService
type mockNotifier struct {
	mu       sync.Mutex
	calls    []invocation
	attempts int
	failures int // upcoming invocations to reject, -1 rejects forever
}

func (m *mockNotifier) Invoke(ctx context.Context, functionName, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts++
	if m.failures != 0 {
		if m.failures > 0 {
			m.failures--
		}
		return errUnavailable
	}
	m.calls = append(m.calls, invocation{functionName: functionName, key: key, payload: payload})
	return nil
}

func (m *mockNotifier) accepted() []invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]invocation(nil), m.calls...)
}

func (m *mockNotifier) attemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Mock DeliveryLog
type mockDeliveryLog struct {
	mu      sync.Mutex
	claimed map[string]bool
	// alwaysClaim disables dedup so compare-and-set is the only guard
	alwaysClaim bool
}

func newMockDeliveryLog() *mockDeliveryLog {
	return &mockDeliveryLog{claimed: make(map[string]bool)}
}

func (m *mockDeliveryLog) ClaimDelivery(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.alwaysClaim {
		return true, nil
	}
	if m.claimed[eventID] {
		return false, nil
	}
	m.claimed[eventID] = true
	return true, nil
}

func (m *mockDeliveryLog) ReleaseDelivery(ctx context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claimed, eventID)
	return nil
}

func (m *mockDeliveryLog) isClaimed(eventID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claimed[eventID]
}

// Mock FailureLog
type mockFailureLog struct {
	mu      sync.Mutex
	records []domain.FailureRecord
}

func (m *mockFailureLog) RecordFailure(ctx context.Context, record domain.FailureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append([]domain.FailureRecord{record}, m.records...)
	return nil
}

func (m *mockFailureLog) RecentFailures(ctx context.Context, limit int) ([]domain.FailureRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.records) {
		limit = len(m.records)
	}
	return append([]domain.FailureRecord(nil), m.records[:limit]...), nil
}

func (m *mockFailureLog) all() []domain.FailureRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.FailureRecord(nil), m.records...)
}

// Mock MutationPublisher
type mockPublisher struct {
	mu     sync.Mutex
	events []domain.MutationEvent
	err    error
}

func (m *mockPublisher) Publish(ctx context.Context, event domain.MutationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

// Mock ItemRepository, an in-memory primary store
type mockItemRepo struct {
	mu    sync.Mutex
	items map[string]domain.InventoryItem
	err   error
}

func newMockItemRepo() *mockItemRepo {
	return &mockItemRepo{items: make(map[string]domain.InventoryItem)}
}

func (m *mockItemRepo) SaveItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	now := time.Now().UTC()
	if current, ok := m.items[item.ItemID]; ok {
		item.CreatedAt = current.CreatedAt
		item.Version = current.Version + 1
	} else {
		item.CreatedAt = now
		item.Version = 1
	}
	item.LastUpdated = now
	m.items[item.ItemID] = item
	return &item, nil
}

func (m *mockItemRepo) AdjustQuantity(ctx context.Context, itemID string, delta int, allowNegative bool) (*domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	if !allowNegative && item.Quantity+delta < 0 {
		return nil, domain.ErrInsufficientStock
	}
	item.Quantity += delta
	item.Version++
	item.LastUpdated = time.Now().UTC()
	m.items[itemID] = item
	return &item, nil
}

func (m *mockItemRepo) SetImageURL(ctx context.Context, itemID, url string) (*domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	item.ImageURL = &url
	item.Version++
	item.LastUpdated = time.Now().UTC()
	m.items[itemID] = item
	return &item, nil
}

func (m *mockItemRepo) GetItem(ctx context.Context, itemID string) (*domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *mockItemRepo) ListItems(ctx context.Context, category string, limit int) ([]domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var items []domain.InventoryItem
	for _, item := range m.items {
		if category == "" || item.Category == category {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].LastUpdated.After(items[j].LastUpdated) })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		CallTimeout:     time.Second,
	}
}
