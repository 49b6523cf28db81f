package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/domain"
	"github.com/invenhost/inventree-shopify/pkg/errors"
)

type webhookRegistrationRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewWebhookRegistrationRepository creates a new webhook registration repository
func NewWebhookRegistrationRepository(db DBTX, logger *zap.Logger) *webhookRegistrationRepository {
	return &webhookRegistrationRepository{
		db:     db,
		logger: logger,
	}
}

const registrationColumns = `id, name, topic, endpoint_token, address, secret, remote_id, created_at, updated_at`

func (r *webhookRegistrationRepository) Create(ctx context.Context, reg *domain.WebhookRegistration) error {
	query := `
		INSERT INTO webhook_registrations (` + registrationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	now := time.Now()
	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	if reg.EndpointToken == uuid.Nil {
		reg.EndpointToken = uuid.New()
	}
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = now
	}
	reg.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		reg.ID,
		reg.Name,
		string(reg.Topic),
		reg.EndpointToken,
		reg.Address,
		reg.Secret,
		reg.RemoteID,
		reg.CreatedAt,
		reg.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create webhook registration", zap.String("topic", string(reg.Topic)), zap.Error(err))
		return err
	}

	return nil
}

func (r *webhookRegistrationRepository) GetByEndpointToken(ctx context.Context, token uuid.UUID) (*domain.WebhookRegistration, error) {
	query := `SELECT ` + registrationColumns + ` FROM webhook_registrations WHERE endpoint_token = $1`

	reg, err := scanRegistration(r.db.QueryRowContext(ctx, query, token))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "webhook_registration", ID: token.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get webhook registration", zap.Error(err))
		return nil, err
	}

	return reg, nil
}

func (r *webhookRegistrationRepository) SetRemoteID(ctx context.Context, id uuid.UUID, remoteID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE webhook_registrations SET remote_id = $2, updated_at = $3 WHERE id = $1`,
		id, remoteID, time.Now(),
	)
	if err != nil {
		r.logger.Error("Failed to store remote webhook id", zap.String("registration_id", id.String()), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "webhook_registration", ID: id.String()}
	}
	return nil
}

func (r *webhookRegistrationRepository) List(ctx context.Context) ([]*domain.WebhookRegistration, error) {
	return r.query(ctx, `SELECT `+registrationColumns+` FROM webhook_registrations ORDER BY created_at`)
}

func (r *webhookRegistrationRepository) ListOrphans(ctx context.Context) ([]*domain.WebhookRegistration, error) {
	return r.query(ctx, `SELECT `+registrationColumns+` FROM webhook_registrations WHERE remote_id IS NULL ORDER BY created_at`)
}

func (r *webhookRegistrationRepository) DeleteByRemoteID(ctx context.Context, remoteID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM webhook_registrations WHERE remote_id = $1`, remoteID); err != nil {
		r.logger.Error("Failed to delete webhook registration", zap.Int64("remote_id", remoteID), zap.Error(err))
		return err
	}
	return nil
}

func (r *webhookRegistrationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM webhook_registrations WHERE id = $1`, id); err != nil {
		r.logger.Error("Failed to delete webhook registration", zap.String("registration_id", id.String()), zap.Error(err))
		return err
	}
	return nil
}

func (r *webhookRegistrationRepository) query(ctx context.Context, query string, args ...any) ([]*domain.WebhookRegistration, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query webhook registrations", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var regs []*domain.WebhookRegistration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}

	return regs, rows.Err()
}

func scanRegistration(row rowScanner) (*domain.WebhookRegistration, error) {
	var reg domain.WebhookRegistration
	var topic string
	var remoteID sql.NullInt64
	if err := row.Scan(
		&reg.ID,
		&reg.Name,
		&topic,
		&reg.EndpointToken,
		&reg.Address,
		&reg.Secret,
		&remoteID,
		&reg.CreatedAt,
		&reg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	reg.Topic = domain.Topic(topic)
	if remoteID.Valid {
		v := remoteID.Int64
		reg.RemoteID = &v
	}
	return &reg, nil
}
