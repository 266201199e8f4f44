package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

const (
	mysqlErrDuplicateEntry = 1062
	mysqlErrNoReferenced   = 1452
)

const itemColumns = `item_id, name, description, quantity, price, category, supplier,
	warehouse_location, image_url, version, last_updated, created_at`

type itemRow struct {
	ItemID            string          `db:"item_id"`
	Name              string          `db:"name"`
	Description       string          `db:"description"`
	Quantity          int             `db:"quantity"`
	Price             decimal.Decimal `db:"price"`
	Category          string          `db:"category"`
	Supplier          string          `db:"supplier"`
	WarehouseLocation string          `db:"warehouse_location"`
	ImageURL          sql.NullString  `db:"image_url"`
	Version           int             `db:"version"`
	LastUpdated       time.Time       `db:"last_updated"`
	CreatedAt         time.Time       `db:"created_at"`
}

func (r itemRow) toDomain() domain.InventoryItem {
	item := domain.InventoryItem{
		ItemID:            r.ItemID,
		Name:              r.Name,
		Description:       r.Description,
		Quantity:          r.Quantity,
		Price:             r.Price,
		Category:          r.Category,
		Supplier:          r.Supplier,
		WarehouseLocation: r.WarehouseLocation,
		Version:           r.Version,
		LastUpdated:       r.LastUpdated,
		CreatedAt:         r.CreatedAt,
	}
	if r.ImageURL.Valid {
		url := r.ImageURL.String
		item.ImageURL = &url
	}
	return item
}

type ruleRow struct {
	ID        int64     `db:"id"`
	ItemID    string    `db:"item_id"`
	AlertType string    `db:"alert_type"`
	Threshold int       `db:"threshold"`
	Triggered bool      `db:"triggered"`
	CreatedAt time.Time `db:"created_at"`
}

func (r ruleRow) toDomain() domain.AlertRule {
	return domain.AlertRule{
		ID:        r.ID,
		ItemID:    r.ItemID,
		AlertType: r.AlertType,
		Threshold: r.Threshold,
		Triggered: r.Triggered,
		CreatedAt: r.CreatedAt,
	}
}

// MySQLAdapter is the primary store: inventory items and their stock alerts.
type MySQLAdapter struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: sqlx.NewDb(db, "mysql"), now: time.Now}
}

func (m *MySQLAdapter) SaveItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	now := m.now().UTC()

	var imageURL sql.NullString
	if item.ImageURL != nil {
		imageURL = sql.NullString{String: *item.ImageURL, Valid: true}
	}

	return m.writeItem(ctx, item.ItemID, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_items (`+itemColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
			ON DUPLICATE KEY UPDATE
				name = VALUES(name),
				description = VALUES(description),
				quantity = VALUES(quantity),
				price = VALUES(price),
				category = VALUES(category),
				supplier = VALUES(supplier),
				warehouse_location = VALUES(warehouse_location),
				image_url = VALUES(image_url),
				version = version + 1,
				last_updated = GREATEST(VALUES(last_updated), last_updated)`,
			item.ItemID, item.Name, item.Description, item.Quantity, item.Price, item.Category,
			item.Supplier, item.WarehouseLocation, imageURL, now, now,
		)
		return errors.Wrap(err, "upsert item")
	})
}

func (m *MySQLAdapter) AdjustQuantity(ctx context.Context, itemID string, delta int, allowNegative bool) (*domain.InventoryItem, error) {
	now := m.now().UTC()

	return m.writeItem(ctx, itemID, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE inventory_items
			SET quantity = quantity + ?, version = version + 1,
				last_updated = GREATEST(?, last_updated)
			WHERE item_id = ? AND (? OR quantity + ? >= 0)`,
			delta, now, itemID, allowNegative, delta,
		)
		if err != nil {
			return errors.Wrap(err, "adjust quantity")
		}

		rows, _ := result.RowsAffected()
		if rows > 0 {
			return nil
		}
		exists, err := m.itemExists(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrItemNotFound
		}
		return domain.ErrInsufficientStock
	})
}

func (m *MySQLAdapter) SetImageURL(ctx context.Context, itemID, url string) (*domain.InventoryItem, error) {
	now := m.now().UTC()

	return m.writeItem(ctx, itemID, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE inventory_items
			SET image_url = ?, version = version + 1, last_updated = GREATEST(?, last_updated)
			WHERE item_id = ?`,
			url, now, itemID,
		)
		if err != nil {
			return errors.Wrap(err, "set image url")
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return domain.ErrItemNotFound
		}
		return nil
	})
}

// writeItem runs write and reads the committed row back inside one transaction.
func (m *MySQLAdapter) writeItem(ctx context.Context, itemID string, write func(tx *sqlx.Tx) error) (*domain.InventoryItem, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	if err := write(tx); err != nil {
		return nil, err
	}

	var row itemRow
	if err := tx.GetContext(ctx, &row, `SELECT `+itemColumns+` FROM inventory_items WHERE item_id = ?`, itemID); err != nil {
		return nil, errors.Wrap(err, "read back item")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit")
	}

	item := row.toDomain()
	return &item, nil
}

func (m *MySQLAdapter) itemExists(ctx context.Context, tx *sqlx.Tx, itemID string) (bool, error) {
	var count int
	if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM inventory_items WHERE item_id = ?`, itemID); err != nil {
		return false, errors.Wrap(err, "check item")
	}
	return count > 0, nil
}

func (m *MySQLAdapter) GetItem(ctx context.Context, itemID string) (*domain.InventoryItem, error) {
	var row itemRow
	err := m.db.GetContext(ctx, &row, `SELECT `+itemColumns+` FROM inventory_items WHERE item_id = ?`, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "query item")
	}

	item := row.toDomain()
	return &item, nil
}

func (m *MySQLAdapter) ListItems(ctx context.Context, category string, limit int) ([]domain.InventoryItem, error) {
	var rows []itemRow
	var err error
	if category == "" {
		err = m.db.SelectContext(ctx, &rows, `
			SELECT `+itemColumns+` FROM inventory_items
			ORDER BY last_updated DESC LIMIT ?`, limit)
	} else {
		err = m.db.SelectContext(ctx, &rows, `
			SELECT `+itemColumns+` FROM inventory_items
			WHERE category = ? ORDER BY last_updated DESC LIMIT ?`, category, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "list items")
	}

	items := make([]domain.InventoryItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.toDomain())
	}
	return items, nil
}

func (m *MySQLAdapter) CreateRule(ctx context.Context, rule domain.AlertRule) (*domain.AlertRule, error) {
	now := m.now().UTC()

	result, err := m.db.ExecContext(ctx, `
		INSERT INTO stock_alerts (item_id, alert_type, threshold, triggered, created_at, updated_at)
		VALUES (?, ?, ?, FALSE, ?, ?)`,
		rule.ItemID, rule.AlertType, rule.Threshold, now, now,
	)
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrDuplicateEntry:
			return nil, domain.ErrRuleExists
		case mysqlErrNoReferenced:
			return nil, domain.ErrItemNotFound
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "insert alert")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "alert id")
	}

	rule.ID = id
	rule.Triggered = false
	rule.CreatedAt = now
	return &rule, nil
}

func (m *MySQLAdapter) ListRules(ctx context.Context, itemID string) ([]domain.AlertRule, error) {
	var rows []ruleRow
	err := m.db.SelectContext(ctx, &rows, `
		SELECT id, item_id, alert_type, threshold, triggered, created_at
		FROM stock_alerts WHERE item_id = ? ORDER BY id`, itemID)
	if err != nil {
		return nil, errors.Wrap(err, "list alerts")
	}

	rules := make([]domain.AlertRule, 0, len(rows))
	for _, r := range rows {
		rules = append(rules, r.toDomain())
	}
	return rules, nil
}

func (m *MySQLAdapter) MarkTriggered(ctx context.Context, ruleID int64) (bool, error) {
	return m.setTriggered(ctx, ruleID, false, true)
}

func (m *MySQLAdapter) ResetTriggered(ctx context.Context, ruleID int64) (bool, error) {
	return m.setTriggered(ctx, ruleID, true, false)
}

// setTriggered is a compare-and-set on the triggered flag.
func (m *MySQLAdapter) setTriggered(ctx context.Context, ruleID int64, from, to bool) (bool, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE stock_alerts SET triggered = ?, updated_at = ?
		WHERE id = ? AND triggered = ?`,
		to, m.now().UTC(), ruleID, from,
	)
	if err != nil {
		return false, errors.Wrap(err, "update alert")
	}

	rows, _ := result.RowsAffected()
	return rows == 1, nil
}
