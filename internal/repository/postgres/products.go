package postgres

import (
	"context"
	"database/sql"
	"strconv"

	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/domain"
	"github.com/invenhost/inventree-shopify/pkg/errors"
)

type productRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewProductRepository creates a new product repository
func NewProductRepository(db DBTX, logger *zap.Logger) *productRepository {
	return &productRepository{
		db:     db,
		logger: logger,
	}
}

func (r *productRepository) Upsert(ctx context.Context, p *domain.Product) error {
	query := `
		INSERT INTO products (id, title, body_html, vendor, product_type, handle, created_at, updated_at, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			body_html = EXCLUDED.body_html,
			vendor = EXCLUDED.vendor,
			product_type = EXCLUDED.product_type,
			handle = EXCLUDED.handle,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at
	`

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Title,
		p.BodyHTML,
		p.Vendor,
		p.ProductType,
		p.Handle,
		p.CreatedAt,
		p.UpdatedAt,
		p.PublishedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert product", zap.Int64("product_id", p.ID), zap.Error(err))
		return err
	}

	return nil
}

func (r *productRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	query := `
		SELECT id, title, body_html, vendor, product_type, handle, created_at, updated_at, published_at
		FROM products
		WHERE id = $1
	`

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "product", ID: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		r.logger.Error("Failed to get product", zap.Int64("product_id", id), zap.Error(err))
		return nil, err
	}

	return p, nil
}

func (r *productRepository) List(ctx context.Context) ([]*domain.Product, error) {
	query := `
		SELECT id, title, body_html, vendor, product_type, handle, created_at, updated_at, published_at
		FROM products
		ORDER BY title, id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list products", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	var createdAt, updatedAt, publishedAt sql.NullTime
	if err := row.Scan(
		&p.ID,
		&p.Title,
		&p.BodyHTML,
		&p.Vendor,
		&p.ProductType,
		&p.Handle,
		&createdAt,
		&updatedAt,
		&publishedAt,
	); err != nil {
		return nil, err
	}
	p.CreatedAt = nullTimePtr(createdAt)
	p.UpdatedAt = nullTimePtr(updatedAt)
	p.PublishedAt = nullTimePtr(publishedAt)
	return &p, nil
}
