package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invenhost/inventree-shopify/internal/domain"
)

// ProductRepository stores mirrored Shopify products
type ProductRepository interface {
	// Upsert inserts or overwrites every field of the product (last write wins)
	Upsert(ctx context.Context, product *domain.Product) error
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	List(ctx context.Context) ([]*domain.Product, error)
}

// VariantRepository stores mirrored variants
type VariantRepository interface {
	// CreateIfAbsent inserts the variant unless one with the same inventory item id exists.
	// Reports whether a row was inserted; existing rows are never modified.
	CreateIfAbsent(ctx context.Context, variant *domain.Variant) (bool, error)
	GetByInventoryItemID(ctx context.Context, inventoryItemID int64) (*domain.Variant, error)
	// ListByInventoryItemIDs returns the known variants among ids; unknown ids are skipped
	ListByInventoryItemIDs(ctx context.Context, ids []int64) ([]*domain.Variant, error)
	ListInventoryItemIDs(ctx context.Context) ([]int64, error)
	ListByProduct(ctx context.Context, productID int64) ([]*domain.Variant, error)
	LinkPart(ctx context.Context, inventoryItemID int64, partID *uuid.UUID) error
}

// InventoryLevelRepository stores per-location availability
type InventoryLevelRepository interface {
	// UpsertFromRemote gets or creates the level for (location, variant) and overwrites
	// available and updated_at in one statement.
	UpsertFromRemote(ctx context.Context, variantID uuid.UUID, locationID, available int64, updatedAt *time.Time) (*domain.InventoryLevel, error)
	FindByItemAndLocation(ctx context.Context, inventoryItemID, locationID int64) ([]*domain.InventoryLevel, error)
	ListByStockItem(ctx context.Context, stockItemID uuid.UUID) ([]*domain.InventoryLevel, error)
	// List returns all levels, or only those at locationID when it is non-nil
	List(ctx context.Context, locationID *int64) ([]*domain.InventoryLevel, error)
	SetAvailable(ctx context.Context, id uuid.UUID, available int64, updatedAt *time.Time) error
	LinkStockItem(ctx context.Context, id uuid.UUID, stockItemID *uuid.UUID) error
}

// WebhookRegistrationRepository stores local webhook endpoints
type WebhookRegistrationRepository interface {
	Create(ctx context.Context, reg *domain.WebhookRegistration) error
	GetByEndpointToken(ctx context.Context, token uuid.UUID) (*domain.WebhookRegistration, error)
	SetRemoteID(ctx context.Context, id uuid.UUID, remoteID int64) error
	List(ctx context.Context) ([]*domain.WebhookRegistration, error)
	// ListOrphans returns registrations whose remote subscribe call never succeeded
	ListOrphans(ctx context.Context) ([]*domain.WebhookRegistration, error)
	DeleteByRemoteID(ctx context.Context, remoteID int64) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// DeliveryFunc applies one webhook delivery using repos, which share the
// ledger's unit of work. repos.DeliveryLedger is nil.
type DeliveryFunc func(ctx context.Context, repos *Repositories) error

// DeliveryLedgerRepository records inbound webhook deliveries
type DeliveryLedgerRepository interface {
	// Process records msg and runs fn unless the same message was already worked on.
	// The check, fn and the worked_on update are serialized per (endpoint, message id).
	// Returns false with a nil error for duplicates. If fn fails the entry stays unworked.
	Process(ctx context.Context, msg *domain.WebhookMessage, fn DeliveryFunc) (bool, error)
	Get(ctx context.Context, endpointID uuid.UUID, messageID string) (*domain.WebhookMessage, error)
}

// StockItemRepository is the local stock store the mirror is linked to
type StockItemRepository interface {
	Create(ctx context.Context, item *domain.StockItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.StockItem, error)
	List(ctx context.Context) ([]*domain.StockItem, error)
	// SetQuantity updates the quantity and appends the tracking entry atomically
	SetQuantity(ctx context.Context, id uuid.UUID, quantity decimal.Decimal, entry *domain.StockTrackingEntry) error
	ListTracking(ctx context.Context, stockItemID uuid.UUID) ([]*domain.StockTrackingEntry, error)
}

// Repositories holds all repositories
type Repositories struct {
	Product             ProductRepository
	Variant             VariantRepository
	InventoryLevel      InventoryLevelRepository
	WebhookRegistration WebhookRegistrationRepository
	DeliveryLedger      DeliveryLedgerRepository
	StockItem           StockItemRepository
}
