package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/domain"
	"github.com/invenhost/inventree-shopify/pkg/errors"
)

type stockItemRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewStockItemRepository creates a new stock item repository
func NewStockItemRepository(db DBTX, logger *zap.Logger) *stockItemRepository {
	return &stockItemRepository{
		db:     db,
		logger: logger,
	}
}

func (r *stockItemRepository) Create(ctx context.Context, item *domain.StockItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO stock_items (id, part_id, quantity, updated_at) VALUES ($1, $2, $3, $4)`,
		item.ID, uuidArg(item.PartID), item.Quantity, item.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create stock item", zap.Error(err))
		return err
	}
	return nil
}

func (r *stockItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.StockItem, error) {
	item, err := scanStockItem(r.db.QueryRowContext(ctx,
		`SELECT id, part_id, quantity, updated_at FROM stock_items WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "stock_item", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get stock item", zap.String("stock_item_id", id.String()), zap.Error(err))
		return nil, err
	}
	return item, nil
}

func (r *stockItemRepository) List(ctx context.Context) ([]*domain.StockItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, part_id, quantity, updated_at FROM stock_items ORDER BY updated_at DESC`)
	if err != nil {
		r.logger.Error("Failed to list stock items", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var items []*domain.StockItem
	for rows.Next() {
		item, err := scanStockItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *stockItemRepository) SetQuantity(ctx context.Context, id uuid.UUID, quantity decimal.Decimal, entry *domain.StockTrackingEntry) error {
	return inTx(ctx, r.db, func(tx DBTX) error {
		return r.setQuantity(ctx, tx, id, quantity, entry)
	})
}

func (r *stockItemRepository) setQuantity(ctx context.Context, tx DBTX, id uuid.UUID, quantity decimal.Decimal, entry *domain.StockTrackingEntry) error {
	now := time.Now()
	res, err := tx.ExecContext(ctx,
		`UPDATE stock_items SET quantity = $2, updated_at = $3 WHERE id = $1`,
		id, quantity, now,
	)
	if err != nil {
		r.logger.Error("Failed to set stock quantity", zap.String("stock_item_id", id.String()), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "stock_item", ID: id.String()}
	}

	if entry != nil {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		entry.StockItemID = id
		entry.CreatedAt = now
		deltas, err := json.Marshal(entry.Deltas)
		if err != nil {
			return fmt.Errorf("failed to marshal tracking deltas: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_item_tracking (id, stock_item_id, code, notes, deltas, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, entry.ID, id, string(entry.Code), entry.Notes, string(deltas), now)
		if err != nil {
			r.logger.Error("Failed to add stock tracking entry", zap.String("stock_item_id", id.String()), zap.Error(err))
			return err
		}
	}
	return nil
}

func (r *stockItemRepository) ListTracking(ctx context.Context, stockItemID uuid.UUID) ([]*domain.StockTrackingEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, stock_item_id, code, notes, deltas, created_at
		FROM stock_item_tracking
		WHERE stock_item_id = $1
		ORDER BY created_at
	`, stockItemID)
	if err != nil {
		r.logger.Error("Failed to list stock tracking", zap.String("stock_item_id", stockItemID.String()), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.StockTrackingEntry
	for rows.Next() {
		var e domain.StockTrackingEntry
		var code string
		var deltas []byte
		if err := rows.Scan(&e.ID, &e.StockItemID, &code, &e.Notes, &deltas, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Code = domain.TrackingCode(code)
		if err := json.Unmarshal(deltas, &e.Deltas); err != nil {
			return nil, fmt.Errorf("failed to decode tracking deltas: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func scanStockItem(row rowScanner) (*domain.StockItem, error) {
	var item domain.StockItem
	var partID uuid.NullUUID
	if err := row.Scan(&item.ID, &partID, &item.Quantity, &item.UpdatedAt); err != nil {
		return nil, err
	}
	item.PartID = nullUUIDPtr(partID)
	return &item, nil
}
