package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/domain"
	"github.com/invenhost/inventree-shopify/internal/repository"
	"github.com/invenhost/inventree-shopify/pkg/errors"
)

type deliveryLedgerRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeliveryLedgerRepository creates a new webhook delivery ledger
func NewDeliveryLedgerRepository(db *sql.DB, logger *zap.Logger) *deliveryLedgerRepository {
	return &deliveryLedgerRepository{
		db:     db,
		logger: logger,
	}
}

// Process holds a row lock on the (endpoint, message id) entry for the whole
// check-run-mark sequence. A concurrent delivery of the same message blocks on
// the lock and then observes worked_on. fn gets repositories bound to the
// ledger transaction, so its writes commit or roll back with the mark and a
// delivery never holds more than one pooled connection.
func (r *deliveryLedgerRepository) Process(ctx context.Context, msg *domain.WebhookMessage, fn repository.DeliveryFunc) (bool, error) {
	header, err := json.Marshal(msg.Header)
	if err != nil {
		return false, fmt.Errorf("failed to marshal header snapshot: %w", err)
	}
	body := []byte(msg.Body)
	if len(body) == 0 {
		body = []byte("{}")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin ledger transaction", zap.Error(err))
		return false, err
	}
	defer tx.Rollback()

	now := time.Now()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO webhook_messages (id, endpoint_id, message_id, header, body, worked_on, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, false, $6, $6)
		ON CONFLICT (endpoint_id, message_id) DO NOTHING
	`, msg.ID, msg.EndpointID, msg.MessageID, string(header), string(body), now)
	if err != nil {
		r.logger.Error("Failed to record webhook message", zap.String("message_id", msg.MessageID), zap.Error(err))
		return false, err
	}

	var rowID uuid.UUID
	var workedOn bool
	var storedHdr []byte
	err = tx.QueryRowContext(ctx, `
		SELECT id, worked_on, header
		FROM webhook_messages
		WHERE endpoint_id = $1 AND message_id = $2
		FOR UPDATE
	`, msg.EndpointID, msg.MessageID).Scan(&rowID, &workedOn, &storedHdr)
	if err != nil {
		r.logger.Error("Failed to lock webhook message", zap.String("message_id", msg.MessageID), zap.Error(err))
		return false, err
	}
	msg.ID = rowID

	if workedOn && storedMessageID(storedHdr) == msg.MessageID {
		msg.WorkedOn = true
		return false, nil
	}

	if err := fn(ctx, txRepositories(tx, r.logger)); err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE webhook_messages
		SET worked_on = true, header = $2, body = $3, updated_at = $4
		WHERE id = $1
	`, rowID, string(header), string(body), time.Now())
	if err != nil {
		r.logger.Error("Failed to mark webhook message worked on", zap.String("message_id", msg.MessageID), zap.Error(err))
		return false, err
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit ledger transaction", zap.String("message_id", msg.MessageID), zap.Error(err))
		return false, err
	}

	msg.WorkedOn = true
	return true, nil
}

func (r *deliveryLedgerRepository) Get(ctx context.Context, endpointID uuid.UUID, messageID string) (*domain.WebhookMessage, error) {
	query := `
		SELECT id, endpoint_id, message_id, header, body, worked_on, created_at, updated_at
		FROM webhook_messages
		WHERE endpoint_id = $1 AND message_id = $2
	`

	var msg domain.WebhookMessage
	var header, body []byte
	err := r.db.QueryRowContext(ctx, query, endpointID, messageID).Scan(
		&msg.ID,
		&msg.EndpointID,
		&msg.MessageID,
		&header,
		&body,
		&msg.WorkedOn,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "webhook_message", ID: messageID}
	}
	if err != nil {
		r.logger.Error("Failed to get webhook message", zap.String("message_id", messageID), zap.Error(err))
		return nil, err
	}

	if err := json.Unmarshal(header, &msg.Header); err != nil {
		return nil, fmt.Errorf("failed to decode header snapshot: %w", err)
	}
	msg.Body = json.RawMessage(body)

	return &msg, nil
}

// storedMessageID reads the webhook id out of a stored header snapshot
func storedMessageID(raw []byte) string {
	var header map[string]string
	if err := json.Unmarshal(raw, &header); err != nil {
		return ""
	}
	return header[domain.HeaderWebhookID]
}
