package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/domain"
	"github.com/invenhost/inventree-shopify/pkg/errors"
)

type inventoryLevelRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewInventoryLevelRepository creates a new inventory level repository
func NewInventoryLevelRepository(db DBTX, logger *zap.Logger) *inventoryLevelRepository {
	return &inventoryLevelRepository{
		db:     db,
		logger: logger,
	}
}

const levelSelect = `
	SELECT l.id, l.variant_id, v.inventory_item_id, l.location_id, l.available, l.updated_at, l.stock_item_id
	FROM inventory_levels l
	JOIN variants v ON v.id = l.variant_id
`

func (r *inventoryLevelRepository) UpsertFromRemote(ctx context.Context, variantID uuid.UUID, locationID, available int64, updatedAt *time.Time) (*domain.InventoryLevel, error) {
	query := `
		WITH upserted AS (
			INSERT INTO inventory_levels (id, variant_id, location_id, available, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (location_id, variant_id) DO UPDATE SET
				available = EXCLUDED.available,
				updated_at = EXCLUDED.updated_at
			RETURNING id, variant_id, location_id, available, updated_at, stock_item_id
		)
		SELECT u.id, u.variant_id, v.inventory_item_id, u.location_id, u.available, u.updated_at, u.stock_item_id
		FROM upserted u
		JOIN variants v ON v.id = u.variant_id
	`

	level, err := scanLevel(r.db.QueryRowContext(ctx, query, uuid.New(), variantID, locationID, available, updatedAt))
	if err != nil {
		r.logger.Error("Failed to upsert inventory level",
			zap.String("variant_id", variantID.String()),
			zap.Int64("location_id", locationID),
			zap.Error(err),
		)
		return nil, err
	}

	return level, nil
}

func (r *inventoryLevelRepository) FindByItemAndLocation(ctx context.Context, inventoryItemID, locationID int64) ([]*domain.InventoryLevel, error) {
	return r.query(ctx, levelSelect+`WHERE v.inventory_item_id = $1 AND l.location_id = $2`, inventoryItemID, locationID)
}

func (r *inventoryLevelRepository) ListByStockItem(ctx context.Context, stockItemID uuid.UUID) ([]*domain.InventoryLevel, error) {
	return r.query(ctx, levelSelect+`WHERE l.stock_item_id = $1 ORDER BY l.location_id`, stockItemID)
}

func (r *inventoryLevelRepository) List(ctx context.Context, locationID *int64) ([]*domain.InventoryLevel, error) {
	if locationID != nil {
		return r.query(ctx, levelSelect+`WHERE l.location_id = $1 ORDER BY v.inventory_item_id`, *locationID)
	}
	return r.query(ctx, levelSelect+`ORDER BY l.location_id, v.inventory_item_id`)
}

func (r *inventoryLevelRepository) SetAvailable(ctx context.Context, id uuid.UUID, available int64, updatedAt *time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE inventory_levels SET available = $2, updated_at = COALESCE($3::timestamptz, updated_at) WHERE id = $1`,
		id, available, updatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to set inventory level", zap.String("level_id", id.String()), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "inventory_level", ID: id.String()}
	}
	return nil
}

func (r *inventoryLevelRepository) LinkStockItem(ctx context.Context, id uuid.UUID, stockItemID *uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE inventory_levels SET stock_item_id = $2 WHERE id = $1`,
		id, uuidArg(stockItemID),
	)
	if err != nil {
		r.logger.Error("Failed to link stock item", zap.String("level_id", id.String()), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "inventory_level", ID: id.String()}
	}
	return nil
}

func (r *inventoryLevelRepository) query(ctx context.Context, query string, args ...any) ([]*domain.InventoryLevel, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query inventory levels", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var levels []*domain.InventoryLevel
	for rows.Next() {
		level, err := scanLevel(rows)
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}

	return levels, rows.Err()
}

func scanLevel(row rowScanner) (*domain.InventoryLevel, error) {
	var l domain.InventoryLevel
	var updatedAt sql.NullTime
	var stockItemID uuid.NullUUID
	if err := row.Scan(
		&l.ID,
		&l.VariantID,
		&l.InventoryItemID,
		&l.LocationID,
		&l.Available,
		&updatedAt,
		&stockItemID,
	); err != nil {
		return nil, err
	}
	l.UpdatedAt = nullTimePtr(updatedAt)
	l.StockItemID = nullUUIDPtr(stockItemID)
	return &l, nil
}
