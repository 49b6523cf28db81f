package service

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invenhost/inventree-shopify/internal/domain"
	"github.com/invenhost/inventree-shopify/internal/shopify"
	"github.com/invenhost/inventree-shopify/pkg/errors"
)

const selfHost = "inventory.example.com"

// remoteWebhooks simulates the subscription list on the shop
type remoteWebhooks struct {
	mu          sync.Mutex
	hooks       []domain.WebhookDescriptor
	nextID      int64
	failPost    bool
	failList    bool
	failDelete  bool
	postTimeout bool // subscription is applied but the response is lost
}

func (w *remoteWebhooks) install(t *testing.T, f *fakeRemote) {
	f.on(http.MethodGet, shopify.EndpointWebhooks, func(call) (*shopify.Response, error) {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.failList {
			return rawResponse(http.StatusForbidden, `{"errors":"forbidden"}`), nil
		}
		return jsonResponse(t, http.StatusOK, shopify.WebhooksEnvelope{Webhooks: append([]domain.WebhookDescriptor(nil), w.hooks...)}), nil
	})
	f.on(http.MethodPost, shopify.EndpointWebhooks, func(c call) (*shopify.Response, error) {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.failPost {
			return rawResponse(http.StatusUnprocessableEntity, `{"errors":{"address":["for this topic has already been taken"]}}`), nil
		}
		req := c.Body.(shopify.WebhookCreateRequest)
		w.nextID++
		h := domain.WebhookDescriptor{ID: w.nextID, Topic: req.Webhook.Topic, Address: req.Webhook.Address, Format: req.Webhook.Format}
		w.hooks = append(w.hooks, h)
		if w.postTimeout {
			return nil, &errors.ErrRemoteCall{Method: c.Method, Endpoint: c.Endpoint, Err: context.DeadlineExceeded}
		}
		return jsonResponse(t, http.StatusCreated, shopify.WebhookEnvelope{Webhook: &h}), nil
	})
}

// allowDelete routes DELETE for the subscriptions currently present
func (w *remoteWebhooks) allowDelete(t *testing.T, f *fakeRemote) {
	w.mu.Lock()
	ids := make([]int64, 0, len(w.hooks))
	for _, h := range w.hooks {
		ids = append(ids, h.ID)
	}
	w.mu.Unlock()

	for _, id := range ids {
		id := id
		f.on(http.MethodDelete, shopify.EndpointWebhook(id), func(call) (*shopify.Response, error) {
			w.mu.Lock()
			defer w.mu.Unlock()
			if w.failDelete {
				return rawResponse(http.StatusInternalServerError, `{"errors":"Internal Server Error"}`), nil
			}
			for i, h := range w.hooks {
				if h.ID == id {
					w.hooks = append(w.hooks[:i], w.hooks[i+1:]...)
					break
				}
			}
			return rawResponse(http.StatusOK, `{}`), nil
		})
	}
}

func topicsByHost(hooks []domain.WebhookDescriptor) []string {
	out := make([]string, 0, len(hooks))
	for _, h := range hooks {
		host := "other"
		if strings.Contains(h.Address, selfHost) {
			host = "self"
		}
		out = append(out, h.Topic+"@"+host)
	}
	sort.Strings(out)
	return out
}

// seedRegistration stores the local side of a subscription already on the shop
func seedRegistration(t *testing.T, env *testEnv, topic domain.Topic, token string, remoteID int64) *domain.WebhookRegistration {
	t.Helper()
	reg := &domain.WebhookRegistration{
		Topic:         topic,
		EndpointToken: uuid.MustParse(token),
		Address:       CallbackAddress(selfHost, token),
		Secret:        "app-secret",
		RemoteID:      &remoteID,
	}
	require.NoError(t, env.repos.WebhookRegistration.Create(context.Background(), reg))
	return reg
}

const (
	existingToken = "0b7d3c4e-6a7f-4c1d-9f0e-2a1b3c4d5e6f"
	keptToken     = "5f4e3d2c-1b0a-4f9e-8d7c-6b5a4f3e2d1c"
)

func newRegistrar(env *testEnv) *Registrar {
	return NewRegistrar(env.remote, env.repos, NewMutexLocker(), "app-secret", env.metrics, env.logger)
}

func TestCallbackAddress(t *testing.T) {
	assert.Equal(t, "https://inventory.example.com/api/webhook/abc/", CallbackAddress("inventory.example.com", "abc"))
	assert.Equal(t, "https://inventory.example.com/api/webhook/abc/", CallbackAddress("inventory.example.com/", "abc"))
}

func TestRegistrar_Reconcile(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	existing := seedRegistration(t, env, domain.TopicInventoryLevelsUpdate, existingToken, 1)
	w := &remoteWebhooks{nextID: 2, hooks: []domain.WebhookDescriptor{
		{ID: 1, Topic: string(domain.TopicInventoryLevelsUpdate), Address: existing.Address},
		{ID: 2, Topic: string(domain.TopicOrdersEdited), Address: "https://old-host.example.org/api/webhook/x/"},
	}}
	w.install(t, env.remote)
	w.allowDelete(t, env.remote)

	desired := []domain.Topic{domain.TopicInventoryLevelsUpdate, domain.TopicOrdersUpdated}
	hooks, err := newRegistrar(env).Reconcile(ctx, selfHost, desired)
	require.NoError(t, err)

	assert.Equal(t, []string{"inventory_levels/update@self", "orders/updated@self"}, topicsByHost(hooks))
	assert.Len(t, env.remote.callsTo(http.MethodDelete, shopify.EndpointWebhook(2)), 1)
	assert.Empty(t, env.remote.callsTo(http.MethodDelete, shopify.EndpointWebhook(1)))

	posts := env.remote.callsTo(http.MethodPost, shopify.EndpointWebhooks)
	require.Len(t, posts, 1)
	req := posts[0].Body.(shopify.WebhookCreateRequest)
	assert.Equal(t, "orders/updated", req.Webhook.Topic)
	assert.Equal(t, "json", req.Webhook.Format)

	regs, err := env.repos.WebhookRegistration.List(ctx)
	require.NoError(t, err)
	require.Len(t, regs, 2)
	var reg *domain.WebhookRegistration
	for _, r := range regs {
		if r.ID != existing.ID {
			reg = r
		}
	}
	require.NotNil(t, reg)
	assert.Equal(t, domain.TopicOrdersUpdated, reg.Topic)
	assert.Equal(t, "app-secret", reg.Secret)
	assert.Equal(t, CallbackAddress(selfHost, reg.EndpointToken.String()), reg.Address)
	assert.Equal(t, req.Webhook.Address, reg.Address)
	require.NotNil(t, reg.RemoteID)
	assert.Equal(t, int64(3), *reg.RemoteID)
}

func TestRegistrar_ReconcileIsIdempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	w := &remoteWebhooks{}
	w.install(t, env.remote)
	r := newRegistrar(env)
	desired := []domain.Topic{domain.TopicInventoryLevelsUpdate}

	first, err := r.Reconcile(ctx, selfHost, desired)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := r.Reconcile(ctx, selfHost, desired)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, env.remote.callsTo(http.MethodPost, shopify.EndpointWebhooks), 1)
}

func TestRegistrar_KeepsUndesiredOwnSubscriptions(t *testing.T) {
	env := newTestEnv()

	kept := seedRegistration(t, env, domain.TopicOrdersEdited, keptToken, 1)
	w := &remoteWebhooks{nextID: 1, hooks: []domain.WebhookDescriptor{
		{ID: 1, Topic: string(domain.TopicOrdersEdited), Address: kept.Address},
	}}
	w.install(t, env.remote)
	w.allowDelete(t, env.remote)

	hooks, err := newRegistrar(env).Reconcile(context.Background(), selfHost, []domain.Topic{domain.TopicInventoryLevelsUpdate})
	require.NoError(t, err)
	assert.Equal(t, []string{"inventory_levels/update@self", "orders/edited@self"}, topicsByHost(hooks))
	assert.Empty(t, env.remote.callsTo(http.MethodDelete, shopify.EndpointWebhook(1)))
}

func TestRegistrar_CreateFailureLeavesOrphanForReuse(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	w := &remoteWebhooks{failPost: true}
	w.install(t, env.remote)
	r := newRegistrar(env)
	desired := []domain.Topic{domain.TopicInventoryLevelsUpdate}

	_, err := r.Reconcile(ctx, selfHost, desired)
	var createErr *errors.ErrWebhookCreate
	require.ErrorAs(t, err, &createErr)
	assert.Equal(t, string(domain.TopicInventoryLevelsUpdate), createErr.Topic)

	orphans, err := env.repos.WebhookRegistration.ListOrphans(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	orphan := orphans[0]

	w.mu.Lock()
	w.failPost = false
	w.mu.Unlock()

	hooks, err := r.Reconcile(ctx, selfHost, desired)
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, orphan.Address, hooks[0].Address)

	regs, err := env.repos.WebhookRegistration.List(ctx)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, orphan.ID, regs[0].ID)
	assert.False(t, regs[0].IsOrphan())
}

func TestRegistrar_AdoptsSubscriptionCreatedDespiteTimeout(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	w := &remoteWebhooks{postTimeout: true}
	w.install(t, env.remote)
	r := newRegistrar(env)
	desired := []domain.Topic{domain.TopicInventoryLevelsUpdate}

	_, err := r.Reconcile(ctx, selfHost, desired)
	require.True(t, errors.IsRetryable(err))

	orphans, err := env.repos.WebhookRegistration.ListOrphans(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	token := orphans[0].EndpointToken

	w.mu.Lock()
	w.postTimeout = false
	w.mu.Unlock()

	hooks, err := r.Reconcile(ctx, selfHost, desired)
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Len(t, env.remote.callsTo(http.MethodPost, shopify.EndpointWebhooks), 1)

	reg, err := env.repos.WebhookRegistration.GetByEndpointToken(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, reg.RemoteID)
	assert.Equal(t, hooks[0].ID, *reg.RemoteID)
	assert.Equal(t, hooks[0].Address, reg.Address)

	body := []byte(`{"inventory_item_id":11,"location_id":7,"available":1}`)
	outcome, err := NewReceiver(env.repos, env.metrics, env.logger).Receive(ctx, &Delivery{
		Token:     token.String(),
		Topic:     string(domain.TopicInventoryLevelsUpdate),
		MessageID: "after-timeout",
		Signature: Sign(reg.Secret, body),
		Body:      body,
	})
	require.NoError(t, err)
	assert.True(t, outcome.Acknowledged())
}

func TestRegistrar_ReplacesSubscriptionWithoutLocalRegistration(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	stale := CallbackAddress(selfHost, "lost-token")
	w := &remoteWebhooks{nextID: 1, hooks: []domain.WebhookDescriptor{
		{ID: 1, Topic: string(domain.TopicInventoryLevelsUpdate), Address: stale},
	}}
	w.install(t, env.remote)
	w.allowDelete(t, env.remote)

	hooks, err := newRegistrar(env).Reconcile(ctx, selfHost, []domain.Topic{domain.TopicInventoryLevelsUpdate})
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.NotEqual(t, stale, hooks[0].Address)
	assert.Len(t, env.remote.callsTo(http.MethodDelete, shopify.EndpointWebhook(1)), 1)

	regs, err := env.repos.WebhookRegistration.List(ctx)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, hooks[0].Address, regs[0].Address)
}

func TestRegistrar_ForeignDeleteFailureIsBestEffort(t *testing.T) {
	env := newTestEnv()

	w := &remoteWebhooks{nextID: 1, failDelete: true, hooks: []domain.WebhookDescriptor{
		{ID: 1, Topic: string(domain.TopicOrdersEdited), Address: "https://old-host.example.org/api/webhook/x/"},
	}}
	w.install(t, env.remote)
	w.allowDelete(t, env.remote)

	hooks, err := newRegistrar(env).Reconcile(context.Background(), selfHost, []domain.Topic{domain.TopicInventoryLevelsUpdate})
	require.NoError(t, err)
	assert.Equal(t, []string{"inventory_levels/update@self", "orders/edited@other"}, topicsByHost(hooks))
}

func TestRegistrar_ListError(t *testing.T) {
	env := newTestEnv()

	w := &remoteWebhooks{failList: true}
	w.install(t, env.remote)

	_, err := newRegistrar(env).Reconcile(context.Background(), selfHost, []domain.Topic{domain.TopicInventoryLevelsUpdate})
	var listErr *errors.ErrWebhookList
	require.ErrorAs(t, err, &listErr)
	assert.Equal(t, http.StatusForbidden, listErr.Status)
	assert.Empty(t, env.remote.callsTo(http.MethodPost, shopify.EndpointWebhooks))
}

func TestRegistrar_RequiresSelfHost(t *testing.T) {
	env := newTestEnv()

	_, err := newRegistrar(env).Reconcile(context.Background(), "", []domain.Topic{domain.TopicInventoryLevelsUpdate})
	var validation *errors.ErrValidation
	require.ErrorAs(t, err, &validation)
	assert.Empty(t, env.remote.calls)
}

func TestRegistrar_RandomSecretWithoutSharedSecret(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	w := &remoteWebhooks{}
	w.install(t, env.remote)

	r := NewRegistrar(env.remote, env.repos, NewMutexLocker(), "", env.metrics, env.logger)
	_, err := r.Reconcile(ctx, selfHost, []domain.Topic{domain.TopicInventoryLevelsUpdate, domain.TopicOrdersUpdated})
	require.NoError(t, err)

	regs, err := env.repos.WebhookRegistration.List(ctx)
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Len(t, regs[0].Secret, 64)
	assert.NotEqual(t, regs[0].Secret, regs[1].Secret)
}
