package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/domain"
	"github.com/invenhost/inventree-shopify/internal/metrics"
	"github.com/invenhost/inventree-shopify/internal/repository"
	"github.com/invenhost/inventree-shopify/internal/shopify"
	"github.com/invenhost/inventree-shopify/pkg/errors"
)

const reconcileLockKey = "webhook-reconcile"

// WebhookPath is the route inbound deliveries arrive on; the token is appended
const WebhookPath = "/api/webhook/"

// Registrar keeps the remote webhook subscriptions in line with the desired topics
type Registrar struct {
	remote       RemoteClient
	repos        *repository.Repositories
	locker       Locker
	sharedSecret string
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewRegistrar creates a new registrar. sharedSecret is the app secret Shopify
// signs deliveries with; when empty each registration gets a random secret.
func NewRegistrar(remote RemoteClient, repos *repository.Repositories, locker Locker, sharedSecret string, m *metrics.Metrics, logger *zap.Logger) *Registrar {
	return &Registrar{
		remote:       remote,
		repos:        repos,
		locker:       locker,
		sharedSecret: sharedSecret,
		metrics:      m,
		logger:       logger,
	}
}

// CallbackAddress builds the delivery address for an endpoint token
func CallbackAddress(selfHost, token string) string {
	return fmt.Sprintf("https://%s%s%s/", strings.TrimSuffix(selfHost, "/"), WebhookPath, token)
}

// Reconcile deletes subscriptions addressed to other hosts or to unknown local
// endpoints, adopts unconfirmed ones and creates the desired topics missing
// for selfHost. It returns the remote list as it stands afterwards. Only one
// reconciliation runs at a time.
func (r *Registrar) Reconcile(ctx context.Context, selfHost string, desired []domain.Topic) ([]domain.WebhookDescriptor, error) {
	if selfHost == "" {
		return nil, &errors.ErrValidation{Message: "self host is required to reconcile webhooks"}
	}

	unlock, err := r.locker.Lock(ctx, reconcileLockKey)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire reconcile lock: %w", err)
	}
	defer unlock()

	hooks, err := r.reconcile(ctx, selfHost, desired)
	if err != nil {
		r.metrics.WebhookReconciles.WithLabelValues("error").Inc()
		return nil, err
	}
	r.metrics.WebhookReconciles.WithLabelValues("ok").Inc()
	return hooks, nil
}

func (r *Registrar) reconcile(ctx context.Context, selfHost string, desired []domain.Topic) ([]domain.WebhookDescriptor, error) {
	hooks, err := r.list(ctx)
	if err != nil {
		return nil, err
	}

	regs, err := r.repos.WebhookRegistration.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	byAddress := make(map[string]*domain.WebhookRegistration, len(regs))
	for _, reg := range regs {
		byAddress[reg.Address] = reg
	}

	changed := false
	present := make(map[domain.Topic]bool)

	for _, h := range hooks {
		if !strings.Contains(h.Address, selfHost) {
			if r.delete(ctx, h, "Deleted webhook addressed to another host") {
				changed = true
			}
			continue
		}

		reg := byAddress[h.Address]
		if reg == nil {
			// no secret for this token, every delivery would be rejected
			if r.delete(ctx, h, "Deleted webhook with no local registration") {
				changed = true
			}
			continue
		}
		if reg.RemoteID == nil || *reg.RemoteID != h.ID {
			if err := r.adopt(ctx, reg, h); err != nil {
				return nil, err
			}
		}
		present[domain.Topic(h.Topic)] = true
	}

	var missing []domain.Topic
	wanted := make(map[domain.Topic]bool, len(desired))
	for _, t := range desired {
		wanted[t] = true
		if !present[t] {
			missing = append(missing, t)
		}
	}

	orphans, err := r.repos.WebhookRegistration.ListOrphans(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphan registrations: %w", err)
	}
	reusable := make(map[domain.Topic]*domain.WebhookRegistration)
	for _, o := range orphans {
		if wanted[o.Topic] && !present[o.Topic] && reusable[o.Topic] == nil && strings.Contains(o.Address, selfHost) {
			reusable[o.Topic] = o
			continue
		}
		if err := r.repos.WebhookRegistration.Delete(ctx, o.ID); err != nil {
			r.logger.Warn("Failed to clean up orphan registration", zap.String("registration_id", o.ID.String()), zap.Error(err))
		}
	}

	for _, topic := range missing {
		if err := r.create(ctx, selfHost, topic, reusable[topic]); err != nil {
			return nil, err
		}
		changed = true
	}

	if !changed {
		return hooks, nil
	}
	return r.list(ctx)
}

func (r *Registrar) list(ctx context.Context) ([]domain.WebhookDescriptor, error) {
	resp, err := r.remote.Call(ctx, http.MethodGet, shopify.EndpointWebhooks, url.Values{"limit": {"250"}}, nil)
	if err != nil {
		return nil, err
	}
	if resp.HasErrors() {
		return nil, &errors.ErrWebhookList{Status: resp.Status, Body: string(resp.Body)}
	}
	var env shopify.WebhooksEnvelope
	if err := resp.Decode(&env); err != nil {
		return nil, &errors.ErrWebhookList{Status: resp.Status, Body: err.Error()}
	}
	return env.Webhooks, nil
}

// adopt stores the remote id of a subscription that exists remotely although
// its subscribe call was never confirmed
func (r *Registrar) adopt(ctx context.Context, reg *domain.WebhookRegistration, h domain.WebhookDescriptor) error {
	if err := r.repos.WebhookRegistration.SetRemoteID(ctx, reg.ID, h.ID); err != nil {
		return fmt.Errorf("failed to adopt webhook %d: %w", h.ID, err)
	}
	id := h.ID
	reg.RemoteID = &id
	r.logger.Info("Adopted existing webhook",
		zap.String("registration_id", reg.ID.String()),
		zap.Int64("webhook_id", h.ID),
		zap.String("topic", h.Topic),
	)
	return nil
}

// delete removes a subscription we cannot serve; failures are logged and left for the next pass
func (r *Registrar) delete(ctx context.Context, h domain.WebhookDescriptor, msg string) bool {
	resp, err := r.remote.Call(ctx, http.MethodDelete, shopify.EndpointWebhook(h.ID), nil, nil)
	if err != nil || resp.HasErrors() {
		fields := []zap.Field{
			zap.Int64("webhook_id", h.ID),
			zap.String("topic", h.Topic),
			zap.String("address", h.Address),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		} else {
			fields = append(fields, zap.Int("status", resp.Status), zap.String("body", string(resp.Body)))
		}
		r.logger.Warn("Failed to delete webhook", fields...)
		return false
	}

	r.logger.Info(msg,
		zap.Int64("webhook_id", h.ID),
		zap.String("topic", h.Topic),
		zap.String("address", h.Address),
	)
	if err := r.repos.WebhookRegistration.DeleteByRemoteID(ctx, h.ID); err != nil {
		r.logger.Warn("Failed to drop local registration", zap.Int64("webhook_id", h.ID), zap.Error(err))
	}
	return true
}

// create subscribes topic, reusing an orphan registration when one exists.
// The local registration is written first and stays an orphan on failure.
func (r *Registrar) create(ctx context.Context, selfHost string, topic domain.Topic, reg *domain.WebhookRegistration) error {
	if reg == nil {
		secret, err := r.secret()
		if err != nil {
			return err
		}
		reg = &domain.WebhookRegistration{
			Name:   fmt.Sprintf("Shopify %s", topic),
			Topic:  topic,
			Secret: secret,
		}
		reg.EndpointToken = uuid.New()
		reg.Address = CallbackAddress(selfHost, reg.EndpointToken.String())
		if err := r.repos.WebhookRegistration.Create(ctx, reg); err != nil {
			return fmt.Errorf("failed to store registration for %s: %w", topic, err)
		}
	}

	req := shopify.WebhookCreateRequest{Webhook: shopify.WebhookPayload{
		Topic:   string(topic),
		Address: reg.Address,
		Format:  "json",
	}}
	resp, err := r.remote.Call(ctx, http.MethodPost, shopify.EndpointWebhooks, nil, req)
	if err != nil {
		return err
	}

	var env shopify.WebhookEnvelope
	if resp.HasErrors() || resp.Decode(&env) != nil || env.Webhook == nil || env.Webhook.ID == 0 {
		return &errors.ErrWebhookCreate{Topic: string(topic), Status: resp.Status, Body: string(resp.Body)}
	}

	if err := r.repos.WebhookRegistration.SetRemoteID(ctx, reg.ID, env.Webhook.ID); err != nil {
		return fmt.Errorf("failed to store remote id for %s: %w", topic, err)
	}

	r.logger.Info("Created webhook",
		zap.String("topic", string(topic)),
		zap.Int64("webhook_id", env.Webhook.ID),
		zap.String("address", reg.Address),
	)
	return nil
}

func (r *Registrar) secret() (string, error) {
	if r.sharedSecret != "" {
		return r.sharedSecret, nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate webhook secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
