package postgres

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/domain"
	"github.com/invenhost/inventree-shopify/pkg/errors"
)

type variantRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewVariantRepository creates a new variant repository
func NewVariantRepository(db DBTX, logger *zap.Logger) *variantRepository {
	return &variantRepository{
		db:     db,
		logger: logger,
	}
}

const variantColumns = `id, inventory_item_id, remote_id, product_id, title, sku, barcode, price, created_at, updated_at, part_id`

func (r *variantRepository) CreateIfAbsent(ctx context.Context, v *domain.Variant) (bool, error) {
	query := `
		INSERT INTO variants (` + variantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (inventory_item_id) DO NOTHING
	`

	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}

	res, err := r.db.ExecContext(ctx, query,
		v.ID,
		v.InventoryItemID,
		v.RemoteID,
		v.ProductID,
		v.Title,
		v.SKU,
		v.Barcode,
		v.Price,
		v.CreatedAt,
		v.UpdatedAt,
		uuidArg(v.PartID),
	)
	if err != nil {
		r.logger.Error("Failed to create variant", zap.Int64("inventory_item_id", v.InventoryItemID), zap.Error(err))
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *variantRepository) GetByInventoryItemID(ctx context.Context, inventoryItemID int64) (*domain.Variant, error) {
	query := `SELECT ` + variantColumns + ` FROM variants WHERE inventory_item_id = $1`

	v, err := scanVariant(r.db.QueryRowContext(ctx, query, inventoryItemID))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "variant", ID: strconv.FormatInt(inventoryItemID, 10)}
	}
	if err != nil {
		r.logger.Error("Failed to get variant", zap.Int64("inventory_item_id", inventoryItemID), zap.Error(err))
		return nil, err
	}

	return v, nil
}

func (r *variantRepository) ListByInventoryItemIDs(ctx context.Context, ids []int64) ([]*domain.Variant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + variantColumns + ` FROM variants WHERE inventory_item_id = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		r.logger.Error("Failed to list variants by inventory item ids", zap.Int("ids", len(ids)), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var variants []*domain.Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}

	return variants, rows.Err()
}

func (r *variantRepository) ListInventoryItemIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT inventory_item_id FROM variants ORDER BY inventory_item_id`)
	if err != nil {
		r.logger.Error("Failed to list inventory item ids", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (r *variantRepository) ListByProduct(ctx context.Context, productID int64) ([]*domain.Variant, error) {
	query := `SELECT ` + variantColumns + ` FROM variants WHERE product_id = $1 ORDER BY title, inventory_item_id`

	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		r.logger.Error("Failed to list variants", zap.Int64("product_id", productID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var variants []*domain.Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}

	return variants, rows.Err()
}

func (r *variantRepository) LinkPart(ctx context.Context, inventoryItemID int64, partID *uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE variants SET part_id = $2 WHERE inventory_item_id = $1`,
		inventoryItemID, uuidArg(partID),
	)
	if err != nil {
		r.logger.Error("Failed to link part", zap.Int64("inventory_item_id", inventoryItemID), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "variant", ID: strconv.FormatInt(inventoryItemID, 10)}
	}
	return nil
}

func scanVariant(row rowScanner) (*domain.Variant, error) {
	var v domain.Variant
	var createdAt, updatedAt sql.NullTime
	var partID uuid.NullUUID
	if err := row.Scan(
		&v.ID,
		&v.InventoryItemID,
		&v.RemoteID,
		&v.ProductID,
		&v.Title,
		&v.SKU,
		&v.Barcode,
		&v.Price,
		&createdAt,
		&updatedAt,
		&partID,
	); err != nil {
		return nil, err
	}
	v.CreatedAt = nullTimePtr(createdAt)
	v.UpdatedAt = nullTimePtr(updatedAt)
	v.PartID = nullUUIDPtr(partID)
	return &v, nil
}
