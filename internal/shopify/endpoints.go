package shopify

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/invenhost/inventree-shopify/internal/domain"
)

// REST endpoints, relative to /admin/api/{version}/
const (
	EndpointShop              = "shop.json"
	EndpointProducts          = "products.json"
	EndpointInventoryLevels   = "inventory_levels.json"
	EndpointInventoryLevelSet = "inventory_levels/set.json"
	EndpointWebhooks          = "webhooks.json"
)

// EndpointWebhook returns the path of a single webhook subscription
func EndpointWebhook(id int64) string {
	return fmt.Sprintf("webhooks/%d.json", id)
}

// ProductsPageLimit is the maximum page size for products.json
const ProductsPageLimit = 250

// LevelsChunkSize is how many inventory item ids go into one inventory_levels.json call
const LevelsChunkSize = 50

type ProductPayload struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	BodyHTML    string           `json:"body_html"`
	Vendor      string           `json:"vendor"`
	ProductType string           `json:"product_type"`
	Handle      string           `json:"handle"`
	CreatedAt   *time.Time       `json:"created_at"`
	UpdatedAt   *time.Time       `json:"updated_at"`
	PublishedAt *time.Time       `json:"published_at"`
	Variants    []VariantPayload `json:"variants"`
}

func (p ProductPayload) ToDomain() *domain.Product {
	return &domain.Product{
		ID:          p.ID,
		Title:       p.Title,
		BodyHTML:    p.BodyHTML,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
		Handle:      p.Handle,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		PublishedAt: p.PublishedAt,
	}
}

type VariantPayload struct {
	ID              int64           `json:"id"`
	ProductID       int64           `json:"product_id"`
	InventoryItemID int64           `json:"inventory_item_id"`
	Title           string          `json:"title"`
	SKU             string          `json:"sku"`
	Barcode         string          `json:"barcode"`
	Price           decimal.Decimal `json:"price"`
	CreatedAt       *time.Time      `json:"created_at"`
	UpdatedAt       *time.Time      `json:"updated_at"`
}

func (v VariantPayload) ToDomain(productID int64) *domain.Variant {
	return &domain.Variant{
		InventoryItemID: v.InventoryItemID,
		RemoteID:        v.ID,
		ProductID:       productID,
		Title:           v.Title,
		SKU:             v.SKU,
		Barcode:         v.Barcode,
		Price:           v.Price,
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
	}
}

type ProductsEnvelope struct {
	Products []ProductPayload `json:"products"`
}

// InventoryLevelPayload is one level; Available is nil for untracked items
type InventoryLevelPayload struct {
	InventoryItemID int64      `json:"inventory_item_id"`
	LocationID      int64      `json:"location_id"`
	Available       *int64     `json:"available"`
	UpdatedAt       *time.Time `json:"updated_at"`
}

type InventoryLevelsEnvelope struct {
	InventoryLevels []InventoryLevelPayload `json:"inventory_levels"`
}

// InventoryLevelSetRequest is the body of inventory_levels/set.json
type InventoryLevelSetRequest struct {
	LocationID      int64 `json:"location_id"`
	InventoryItemID int64 `json:"inventory_item_id"`
	Available       int64 `json:"available"`
}

type InventoryLevelEnvelope struct {
	InventoryLevel *InventoryLevelPayload `json:"inventory_level"`
}

type WebhookPayload struct {
	Topic   string `json:"topic"`
	Address string `json:"address"`
	Format  string `json:"format"`
}

type WebhookCreateRequest struct {
	Webhook WebhookPayload `json:"webhook"`
}

type WebhookEnvelope struct {
	Webhook *domain.WebhookDescriptor `json:"webhook"`
}

type WebhooksEnvelope struct {
	Webhooks []domain.WebhookDescriptor `json:"webhooks"`
}

type ShopPayload struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Domain          string `json:"domain"`
	MyshopifyDomain string `json:"myshopify_domain"`
}

type ShopEnvelope struct {
	Shop ShopPayload `json:"shop"`
}
