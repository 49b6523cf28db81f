package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invenhost/inventree-shopify/internal/domain"
)

// SetLevelRequest is the manual level set payload
type SetLevelRequest struct {
	Amount *int64 `json:"amount" binding:"required"`
}

type LevelResponse struct {
	ID              uuid.UUID  `json:"id"`
	InventoryItemID int64      `json:"inventory_item_id"`
	LocationID      int64      `json:"location_id"`
	Available       int64      `json:"available"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	StockItemID     *uuid.UUID `json:"stock_item_id,omitempty"`
}

type VariantResponse struct {
	ID              uuid.UUID       `json:"id"`
	RemoteID        int64           `json:"remote_id"`
	InventoryItemID int64           `json:"inventory_item_id"`
	Title           string          `json:"title"`
	SKU             string          `json:"sku"`
	Barcode         string          `json:"barcode,omitempty"`
	Price           decimal.Decimal `json:"price"`
	PartID          *uuid.UUID      `json:"part_id,omitempty"`
	Levels          []LevelResponse `json:"levels"`
}

type ProductResponse struct {
	ID          int64             `json:"id"`
	Title       string            `json:"title"`
	Vendor      string            `json:"vendor,omitempty"`
	ProductType string            `json:"product_type,omitempty"`
	Handle      string            `json:"handle"`
	UpdatedAt   *time.Time        `json:"updated_at,omitempty"`
	Variants    []VariantResponse `json:"variants"`
}

// CatalogOverview is the admin index payload
type CatalogOverview struct {
	Pull     *PullResult       `json:"pull"`
	Products []ProductResponse `json:"products"`
}

func NewLevelResponse(l *domain.InventoryLevel) LevelResponse {
	return LevelResponse{
		ID:              l.ID,
		InventoryItemID: l.InventoryItemID,
		LocationID:      l.LocationID,
		Available:       l.Available,
		UpdatedAt:       l.UpdatedAt,
		StockItemID:     l.StockItemID,
	}
}

func NewLevelResponses(levels []*domain.InventoryLevel) []LevelResponse {
	out := make([]LevelResponse, 0, len(levels))
	for _, l := range levels {
		out = append(out, NewLevelResponse(l))
	}
	return out
}

// NewCatalogOverview nests variants under products and levels under variants
func NewCatalogOverview(pull *PullResult, products []*domain.Product, variants map[int64][]*domain.Variant, levels []*domain.InventoryLevel) *CatalogOverview {
	byItem := make(map[int64][]LevelResponse)
	for _, l := range levels {
		byItem[l.InventoryItemID] = append(byItem[l.InventoryItemID], NewLevelResponse(l))
	}

	out := &CatalogOverview{Pull: pull, Products: make([]ProductResponse, 0, len(products))}
	for _, p := range products {
		pr := ProductResponse{
			ID:          p.ID,
			Title:       p.Title,
			Vendor:      p.Vendor,
			ProductType: p.ProductType,
			Handle:      p.Handle,
			UpdatedAt:   p.UpdatedAt,
			Variants:    make([]VariantResponse, 0, len(variants[p.ID])),
		}
		for _, v := range variants[p.ID] {
			lv := byItem[v.InventoryItemID]
			if lv == nil {
				lv = []LevelResponse{}
			}
			pr.Variants = append(pr.Variants, VariantResponse{
				ID:              v.ID,
				RemoteID:        v.RemoteID,
				InventoryItemID: v.InventoryItemID,
				Title:           v.Title,
				SKU:             v.SKU,
				Barcode:         v.Barcode,
				Price:           v.Price,
				PartID:          v.PartID,
				Levels:          lv,
			})
		}
		out.Products = append(out.Products, pr)
	}
	return out
}
