package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product mirrors a Shopify product. The remote id is the primary key.
type Product struct {
	ID          int64
	Title       string
	BodyHTML    string
	Vendor      string
	ProductType string
	Handle      string
	CreatedAt   *time.Time
	UpdatedAt   *time.Time
	PublishedAt *time.Time
}

// Variant mirrors a Shopify product variant, keyed by its inventory item id.
// Only PartID changes after creation.
type Variant struct {
	ID              uuid.UUID
	InventoryItemID int64
	RemoteID        int64
	ProductID       int64
	Title           string
	SKU             string
	Barcode         string
	Price           decimal.Decimal
	CreatedAt       *time.Time
	UpdatedAt       *time.Time
	PartID          *uuid.UUID // weak link to a local part
}

// InventoryLevel is the available quantity of a variant at one Shopify location
type InventoryLevel struct {
	ID              uuid.UUID
	VariantID       uuid.UUID
	InventoryItemID int64 // joined from the variant, read-only
	LocationID      int64
	Available       int64
	UpdatedAt       *time.Time
	StockItemID     *uuid.UUID
}

// WebhookRegistration is a local webhook endpoint and its remote subscription
type WebhookRegistration struct {
	ID            uuid.UUID
	Name          string
	Topic         Topic
	EndpointToken uuid.UUID
	Address       string
	Secret        string
	RemoteID      *int64 // nil until the remote subscribe call succeeded
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsOrphan reports whether the remote subscription was never confirmed
func (w *WebhookRegistration) IsOrphan() bool {
	return w.RemoteID == nil
}

// WebhookDescriptor is a remote webhook subscription as Shopify reports it
type WebhookDescriptor struct {
	ID        int64     `json:"id"`
	Topic     string    `json:"topic"`
	Address   string    `json:"address"`
	Format    string    `json:"format"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WebhookMessage is one delivery recorded in the ledger
type WebhookMessage struct {
	ID         uuid.UUID
	EndpointID uuid.UUID
	MessageID  string
	Header     map[string]string
	Body       json.RawMessage
	WorkedOn   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StockItem is a local stock record
type StockItem struct {
	ID        uuid.UUID
	PartID    *uuid.UUID
	Quantity  decimal.Decimal
	UpdatedAt time.Time
}

// StockTrackingEntry is an append-only history row for a stock item
type StockTrackingEntry struct {
	ID          uuid.UUID
	StockItemID uuid.UUID
	Code        TrackingCode
	Notes       string
	Deltas      map[string]any
	CreatedAt   time.Time
}
