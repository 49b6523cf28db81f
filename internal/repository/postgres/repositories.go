package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/repository"
)

// NewRepositories creates a new set of repositories
func NewRepositories(db *sql.DB, logger *zap.Logger) *repository.Repositories {
	return &repository.Repositories{
		Product:             NewProductRepository(db, logger),
		Variant:             NewVariantRepository(db, logger),
		InventoryLevel:      NewInventoryLevelRepository(db, logger),
		WebhookRegistration: NewWebhookRegistrationRepository(db, logger),
		DeliveryLedger:      NewDeliveryLedgerRepository(db, logger),
		StockItem:           NewStockItemRepository(db, logger),
	}
}

// DBTX is satisfied by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txRepositories binds every repository except the ledger to tx
func txRepositories(tx *sql.Tx, logger *zap.Logger) *repository.Repositories {
	return &repository.Repositories{
		Product:             NewProductRepository(tx, logger),
		Variant:             NewVariantRepository(tx, logger),
		InventoryLevel:      NewInventoryLevelRepository(tx, logger),
		WebhookRegistration: NewWebhookRegistrationRepository(tx, logger),
		StockItem:           NewStockItemRepository(tx, logger),
	}
}

// inTx runs fn in a fresh transaction, or directly when db is already one
func inTx(ctx context.Context, db DBTX, fn func(DBTX) error) error {
	conn, ok := db.(*sql.DB)
	if !ok {
		return fn(db)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullUUIDPtr(u uuid.NullUUID) *uuid.UUID {
	if !u.Valid {
		return nil
	}
	v := u.UUID
	return &v
}

func uuidArg(u *uuid.UUID) uuid.NullUUID {
	if u == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *u, Valid: true}
}
