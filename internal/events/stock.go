// Package events consumes local stock change notifications and hands them to the pusher.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Stock change event names as emitted by the inventory system
const (
	EventStockItemSaved = "stock_stockitem.saved"
	ModelStockItem      = "StockItem"
)

// StockEvent is either a plugin event envelope or a bare stock item reference
type StockEvent struct {
	Event       string `json:"event,omitempty"`
	Model       string `json:"model,omitempty"`
	ID          string `json:"id,omitempty"`
	StockItemID string `json:"stock_item_id,omitempty"`
}

// DecodeStockEvent returns the stock item a message refers to. ok is false for
// events about other models, which callers drop.
func DecodeStockEvent(b []byte) (id uuid.UUID, ok bool, err error) {
	var ev StockEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to decode stock event: %w", err)
	}

	raw := ev.StockItemID
	if raw == "" {
		if ev.Event != EventStockItemSaved || ev.Model != ModelStockItem {
			return uuid.Nil, false, nil
		}
		raw = ev.ID
	}

	id, err = uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("invalid stock item id %q: %w", raw, err)
	}
	return id, true, nil
}
