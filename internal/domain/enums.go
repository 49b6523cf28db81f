package domain

import "fmt"

// Topic is a Shopify webhook topic this service knows about
type Topic string

const (
	// TopicInventoryLevelsUpdate - stock level changed in Shopify
	TopicInventoryLevelsUpdate Topic = "inventory_levels/update"
	// TopicOrdersUpdated - accepted and recorded, no handler yet
	TopicOrdersUpdated Topic = "orders/updated"
	// TopicOrdersEdited - accepted and recorded, no handler yet
	TopicOrdersEdited Topic = "orders/edited"
)

// IsValid checks if the topic is one of the known topics
func (t Topic) IsValid() bool {
	switch t {
	case TopicInventoryLevelsUpdate,
		TopicOrdersUpdated,
		TopicOrdersEdited:
		return true
	default:
		return false
	}
}

// ParseTopics validates a configured topic list and drops duplicates, keeping order
func ParseTopics(raw []string) ([]Topic, error) {
	seen := make(map[Topic]bool, len(raw))
	topics := make([]Topic, 0, len(raw))
	for _, r := range raw {
		t := Topic(r)
		if !t.IsValid() {
			return nil, fmt.Errorf("unknown webhook topic %q", r)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		topics = append(topics, t)
	}
	return topics, nil
}

// DeliveryOutcome is the terminal state of one inbound webhook delivery
type DeliveryOutcome string

const (
	// DeliveryRejected - unknown endpoint or bad signature
	DeliveryRejected DeliveryOutcome = "rejected"
	// DeliveryDuplicate - already worked on, acknowledged without reprocessing
	DeliveryDuplicate DeliveryOutcome = "duplicate"
	// DeliveryProcessed - handler ran and the ledger entry was marked worked on
	DeliveryProcessed DeliveryOutcome = "processed"
	// DeliveryIgnored - topic has no handler; recorded as worked on anyway
	DeliveryIgnored DeliveryOutcome = "ignored"
	// DeliveryFailed - handler failed; not marked, sender should redeliver
	DeliveryFailed DeliveryOutcome = "failed"
)

// Acknowledged reports whether the sender should be told the delivery succeeded
func (o DeliveryOutcome) Acknowledged() bool {
	return o == DeliveryDuplicate || o == DeliveryProcessed || o == DeliveryIgnored
}

// TrackingCode classifies a stock item history entry
type TrackingCode string

const (
	// TrackingStockCount - quantity set to an absolute count
	TrackingStockCount TrackingCode = "STOCK_COUNT"
)

// Shopify webhook headers
const (
	HeaderTopic      = "X-Shopify-Topic"
	HeaderWebhookID  = "X-Shopify-Webhook-Id"
	HeaderHmacSHA256 = "X-Shopify-Hmac-Sha256"
)
