package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/domain"
	"github.com/invenhost/inventree-shopify/internal/metrics"
	"github.com/invenhost/inventree-shopify/internal/repository"
	"github.com/invenhost/inventree-shopify/pkg/errors"
)

// ShopifyInventoryNote is the tracking note for quantities set from a webhook
const ShopifyInventoryNote = "changed in shopify inventory"

// Delivery is one inbound webhook request as received
type Delivery struct {
	Token     string
	Topic     string
	MessageID string
	Signature string
	Header    map[string]string
	Body      []byte
}

// TopicHandler applies the body of a verified, not yet worked on delivery.
// Writes go through repos so they commit together with the ledger entry.
type TopicHandler func(ctx context.Context, repos *repository.Repositories, body []byte) error

// Receiver authenticates, deduplicates and dispatches webhook deliveries
type Receiver struct {
	repos    *repository.Repositories
	handlers map[domain.Topic]TopicHandler
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewReceiver creates a receiver with the inventory level handler registered
func NewReceiver(repos *repository.Repositories, m *metrics.Metrics, logger *zap.Logger) *Receiver {
	r := &Receiver{
		repos:   repos,
		metrics: m,
		logger:  logger,
	}
	r.handlers = map[domain.Topic]TopicHandler{
		domain.TopicInventoryLevelsUpdate: r.handleInventoryLevelUpdate,
	}
	return r
}

// Sign computes the Shopify delivery signature of body
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against the signature of body
func VerifySignature(secret string, body []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	// constant-time compare
	return hmac.Equal([]byte(Sign(secret, body)), []byte(strings.TrimSpace(header)))
}

// Receive runs one delivery to a terminal outcome. Rejections return
// *errors.ErrSignatureRejected; a failed handler returns its error with
// DeliveryFailed so the sender redelivers.
func (r *Receiver) Receive(ctx context.Context, d *Delivery) (domain.DeliveryOutcome, error) {
	outcome, topic, err := r.receive(ctx, d)
	if !domain.Topic(topic).IsValid() {
		topic = "other"
	}
	r.metrics.WebhookDeliveries.WithLabelValues(topic, string(outcome)).Inc()
	return outcome, err
}

func (r *Receiver) receive(ctx context.Context, d *Delivery) (domain.DeliveryOutcome, string, error) {
	topic := d.Topic

	token, err := uuid.Parse(d.Token)
	if err != nil {
		r.logger.Warn("Webhook rejected: malformed endpoint token")
		return domain.DeliveryRejected, topic, &errors.ErrSignatureRejected{}
	}

	reg, err := r.repos.WebhookRegistration.GetByEndpointToken(ctx, token)
	if errors.IsNotFound(err) {
		r.logger.Warn("Webhook rejected: unknown endpoint", zap.String("token", token.String()))
		return domain.DeliveryRejected, topic, &errors.ErrSignatureRejected{}
	}
	if err != nil {
		return domain.DeliveryFailed, topic, err
	}

	if !VerifySignature(reg.Secret, d.Body, d.Signature) {
		r.logger.Warn("Webhook rejected: invalid signature",
			zap.String("registration_id", reg.ID.String()),
			zap.String("topic", topic),
		)
		return domain.DeliveryRejected, topic, &errors.ErrSignatureRejected{}
	}

	if topic == "" {
		topic = string(reg.Topic)
	}
	if d.MessageID == "" {
		return domain.DeliveryFailed, topic, &errors.ErrValidation{Message: "missing " + domain.HeaderWebhookID + " header"}
	}
	if !json.Valid(d.Body) {
		return domain.DeliveryFailed, topic, &errors.ErrValidation{Message: "webhook body is not valid JSON"}
	}

	header := make(map[string]string, len(d.Header)+1)
	for k, v := range d.Header {
		header[k] = v
	}
	header[domain.HeaderWebhookID] = d.MessageID

	msg := &domain.WebhookMessage{
		EndpointID: reg.ID,
		MessageID:  d.MessageID,
		Header:     header,
		Body:       json.RawMessage(d.Body),
	}

	handler, known := r.handlers[domain.Topic(topic)]
	fn := func(context.Context, *repository.Repositories) error { return nil }
	if known {
		fn = func(ctx context.Context, repos *repository.Repositories) error { return handler(ctx, repos, d.Body) }
	}

	ran, err := r.repos.DeliveryLedger.Process(ctx, msg, fn)
	if err != nil {
		r.logger.Error("Webhook handling failed",
			zap.String("topic", topic),
			zap.String("message_id", d.MessageID),
			zap.Error(err),
		)
		return domain.DeliveryFailed, topic, err
	}
	if !ran {
		r.logger.Info("Duplicate webhook delivery acknowledged",
			zap.String("topic", topic),
			zap.String("message_id", d.MessageID),
		)
		return domain.DeliveryDuplicate, topic, nil
	}
	if !known {
		r.logger.Debug("Webhook topic has no handler, recorded", zap.String("topic", topic))
		return domain.DeliveryIgnored, topic, nil
	}
	return domain.DeliveryProcessed, topic, nil
}

type inventoryLevelUpdate struct {
	InventoryItemID int64      `json:"inventory_item_id"`
	LocationID      int64      `json:"location_id"`
	Available       *int64     `json:"available"`
	UpdatedAt       *time.Time `json:"updated_at"`
}

// handleInventoryLevelUpdate sets the mirrored level, then the linked stock item.
// The level is saved first so the stock change it causes compares equal in the Pusher.
func (r *Receiver) handleInventoryLevelUpdate(ctx context.Context, repos *repository.Repositories, body []byte) error {
	var p inventoryLevelUpdate
	if err := json.Unmarshal(body, &p); err != nil {
		r.logger.Warn("Inventory level payload could not be decoded, skipping", zap.Error(err))
		return nil
	}
	if p.Available == nil {
		r.logger.Debug("Inventory level update without available quantity, skipping",
			zap.Int64("inventory_item_id", p.InventoryItemID),
			zap.Int64("location_id", p.LocationID),
		)
		return nil
	}

	levels, err := repos.InventoryLevel.FindByItemAndLocation(ctx, p.InventoryItemID, p.LocationID)
	if err != nil {
		return err
	}
	if len(levels) != 1 {
		err := &errors.ErrAmbiguousLevelMatch{
			InventoryItemID: p.InventoryItemID,
			LocationID:      p.LocationID,
			Matches:         len(levels),
		}
		r.logger.Info("Inventory level update not applicable", zap.Error(err))
		return nil
	}
	level := levels[0]
	available := *p.Available

	if err := repos.InventoryLevel.SetAvailable(ctx, level.ID, available, p.UpdatedAt); err != nil {
		return err
	}

	if level.StockItemID == nil {
		return nil
	}

	entry := &domain.StockTrackingEntry{
		Code:   domain.TrackingStockCount,
		Notes:  ShopifyInventoryNote,
		Deltas: map[string]any{"quantity": float64(available)},
	}
	err = repos.StockItem.SetQuantity(ctx, *level.StockItemID, decimal.NewFromInt(available), entry)
	if errors.IsNotFound(err) {
		r.logger.Warn("Linked stock item no longer exists",
			zap.String("stock_item_id", level.StockItemID.String()),
			zap.String("level_id", level.ID.String()),
		)
		return nil
	}
	if err != nil {
		return err
	}

	r.logger.Info("Stock set from Shopify inventory",
		zap.String("stock_item_id", level.StockItemID.String()),
		zap.Int64("inventory_item_id", p.InventoryItemID),
		zap.Int64("location_id", p.LocationID),
		zap.Int64("available", available),
	)
	return nil
}
