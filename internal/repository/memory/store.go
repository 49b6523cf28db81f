// Package memory keeps the mirror in process memory. It backs STORAGE=memory and the service tests.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invenhost/inventree-shopify/internal/domain"
	"github.com/invenhost/inventree-shopify/internal/repository"
	"github.com/invenhost/inventree-shopify/pkg/errors"
)

// Store holds every table behind one RWMutex
type Store struct {
	mu            sync.RWMutex
	products      map[int64]*domain.Product
	variants      map[int64]*domain.Variant // by inventory item id
	levels        map[uuid.UUID]*domain.InventoryLevel
	registrations map[uuid.UUID]*domain.WebhookRegistration
	messages      map[ledgerKey]*domain.WebhookMessage
	stock         map[uuid.UUID]*domain.StockItem
	tracking      map[uuid.UUID][]*domain.StockTrackingEntry

	ledgerLocks *keyLocks
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		products:      make(map[int64]*domain.Product),
		variants:      make(map[int64]*domain.Variant),
		levels:        make(map[uuid.UUID]*domain.InventoryLevel),
		registrations: make(map[uuid.UUID]*domain.WebhookRegistration),
		messages:      make(map[ledgerKey]*domain.WebhookMessage),
		stock:         make(map[uuid.UUID]*domain.StockItem),
		tracking:      make(map[uuid.UUID][]*domain.StockTrackingEntry),
		ledgerLocks:   newKeyLocks(),
	}
}

// NewRepositories creates a set of repositories over a fresh store
func NewRepositories() *repository.Repositories {
	return NewStore().Repositories()
}

// Repositories exposes the store through the repository interfaces
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Product:             (*productRepo)(s),
		Variant:             (*variantRepo)(s),
		InventoryLevel:      (*levelRepo)(s),
		WebhookRegistration: (*registrationRepo)(s),
		DeliveryLedger:      (*ledgerRepo)(s),
		StockItem:           (*stockRepo)(s),
	}
}

// keyLocks hands out one mutex per key. Entries live only while some caller
// holds or waits on them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[ledgerKey]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[ledgerKey]*keyLock)}
}

func (k *keyLocks) lock(key ledgerKey) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
}

func (k *keyLocks) unlock(key ledgerKey) {
	k.mu.Lock()
	l := k.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	l.Unlock()
}

func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// products

type productRepo Store

func (r *productRepo) Upsert(_ context.Context, p *domain.Product) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (r *productRepo) GetByID(_ context.Context, id int64) (*domain.Product, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "product", ID: strconv.FormatInt(id, 10)}
	}
	cp := *p
	return &cp, nil
}

func (r *productRepo) List(_ context.Context) ([]*domain.Product, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Product, 0, len(s.products))
	for _, p := range s.products {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// variants

type variantRepo Store

func (r *variantRepo) CreateIfAbsent(_ context.Context, v *domain.Variant) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.variants[v.InventoryItemID]; ok {
		return false, nil
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	cp := *v
	s.variants[v.InventoryItemID] = &cp
	return true, nil
}

func (r *variantRepo) GetByInventoryItemID(_ context.Context, inventoryItemID int64) (*domain.Variant, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.variants[inventoryItemID]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "variant", ID: strconv.FormatInt(inventoryItemID, 10)}
	}
	cp := *v
	return &cp, nil
}

func (r *variantRepo) ListByInventoryItemIDs(_ context.Context, ids []int64) ([]*domain.Variant, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Variant
	for _, id := range ids {
		if v, ok := s.variants[id]; ok {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *variantRepo) ListInventoryItemIDs(_ context.Context) ([]int64, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.variants))
	for id := range s.variants {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *variantRepo) ListByProduct(_ context.Context, productID int64) ([]*domain.Variant, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Variant
	for _, v := range s.variants {
		if v.ProductID == productID {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InventoryItemID < out[j].InventoryItemID })
	return out, nil
}

func (r *variantRepo) LinkPart(_ context.Context, inventoryItemID int64, partID *uuid.UUID) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variants[inventoryItemID]
	if !ok {
		return &errors.ErrNotFound{Resource: "variant", ID: strconv.FormatInt(inventoryItemID, 10)}
	}
	v.PartID = partID
	return nil
}

// inventory levels

type levelRepo Store

func (s *Store) variantByID(id uuid.UUID) *domain.Variant {
	for _, v := range s.variants {
		if v.ID == id {
			return v
		}
	}
	return nil
}

func (s *Store) levelCopy(l *domain.InventoryLevel) *domain.InventoryLevel {
	cp := *l
	if v := s.variantByID(l.VariantID); v != nil {
		cp.InventoryItemID = v.InventoryItemID
	}
	return &cp
}

func (r *levelRepo) UpsertFromRemote(_ context.Context, variantID uuid.UUID, locationID, available int64, updatedAt *time.Time) (*domain.InventoryLevel, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.variantByID(variantID) == nil {
		return nil, &errors.ErrNotFound{Resource: "variant", ID: variantID.String()}
	}
	for _, l := range s.levels {
		if l.VariantID == variantID && l.LocationID == locationID {
			l.Available = available
			l.UpdatedAt = updatedAt
			return s.levelCopy(l), nil
		}
	}
	l := &domain.InventoryLevel{
		ID:         uuid.New(),
		VariantID:  variantID,
		LocationID: locationID,
		Available:  available,
		UpdatedAt:  updatedAt,
	}
	s.levels[l.ID] = l
	return s.levelCopy(l), nil
}

func (r *levelRepo) FindByItemAndLocation(_ context.Context, inventoryItemID, locationID int64) ([]*domain.InventoryLevel, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.variants[inventoryItemID]
	if !ok {
		return nil, nil
	}
	var out []*domain.InventoryLevel
	for _, l := range s.levels {
		if l.VariantID == v.ID && l.LocationID == locationID {
			out = append(out, s.levelCopy(l))
		}
	}
	return out, nil
}

func (r *levelRepo) ListByStockItem(_ context.Context, stockItemID uuid.UUID) ([]*domain.InventoryLevel, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.InventoryLevel
	for _, l := range s.levels {
		if l.StockItemID != nil && *l.StockItemID == stockItemID {
			out = append(out, s.levelCopy(l))
		}
	}
	sortLevels(out)
	return out, nil
}

func (r *levelRepo) List(_ context.Context, locationID *int64) ([]*domain.InventoryLevel, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.InventoryLevel
	for _, l := range s.levels {
		if locationID != nil && l.LocationID != *locationID {
			continue
		}
		out = append(out, s.levelCopy(l))
	}
	sortLevels(out)
	return out, nil
}

func (r *levelRepo) SetAvailable(_ context.Context, id uuid.UUID, available int64, updatedAt *time.Time) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.levels[id]
	if !ok {
		return &errors.ErrNotFound{Resource: "inventory_level", ID: id.String()}
	}
	l.Available = available
	if updatedAt != nil {
		l.UpdatedAt = updatedAt
	}
	return nil
}

func (r *levelRepo) LinkStockItem(_ context.Context, id uuid.UUID, stockItemID *uuid.UUID) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.levels[id]
	if !ok {
		return &errors.ErrNotFound{Resource: "inventory_level", ID: id.String()}
	}
	l.StockItemID = stockItemID
	return nil
}

func sortLevels(levels []*domain.InventoryLevel) {
	sort.Slice(levels, func(i, j int) bool {
		if levels[i].LocationID != levels[j].LocationID {
			return levels[i].LocationID < levels[j].LocationID
		}
		return levels[i].InventoryItemID < levels[j].InventoryItemID
	})
}

// webhook registrations

type registrationRepo Store

func (r *registrationRepo) Create(_ context.Context, reg *domain.WebhookRegistration) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
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
	cp := *reg
	s.registrations[reg.ID] = &cp
	return nil
}

func (r *registrationRepo) GetByEndpointToken(_ context.Context, token uuid.UUID) (*domain.WebhookRegistration, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, reg := range s.registrations {
		if reg.EndpointToken == token {
			cp := *reg
			return &cp, nil
		}
	}
	return nil, &errors.ErrNotFound{Resource: "webhook_registration", ID: token.String()}
}

func (r *registrationRepo) SetRemoteID(_ context.Context, id uuid.UUID, remoteID int64) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[id]
	if !ok {
		return &errors.ErrNotFound{Resource: "webhook_registration", ID: id.String()}
	}
	reg.RemoteID = &remoteID
	reg.UpdatedAt = time.Now()
	return nil
}

func (r *registrationRepo) List(_ context.Context) ([]*domain.WebhookRegistration, error) {
	return (*Store)(r).listRegistrations(func(*domain.WebhookRegistration) bool { return true }), nil
}

func (r *registrationRepo) ListOrphans(_ context.Context) ([]*domain.WebhookRegistration, error) {
	return (*Store)(r).listRegistrations((*domain.WebhookRegistration).IsOrphan), nil
}

func (s *Store) listRegistrations(keep func(*domain.WebhookRegistration) bool) []*domain.WebhookRegistration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.WebhookRegistration
	for _, reg := range s.registrations {
		if keep(reg) {
			cp := *reg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *registrationRepo) DeleteByRemoteID(_ context.Context, remoteID int64) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, reg := range s.registrations {
		if reg.RemoteID != nil && *reg.RemoteID == remoteID {
			delete(s.registrations, id)
		}
	}
	return nil
}

func (r *registrationRepo) Delete(_ context.Context, id uuid.UUID) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.registrations, id)
	return nil
}

// delivery ledger

type ledgerKey struct {
	endpoint  uuid.UUID
	messageID string
}

type ledgerRepo Store

func (r *ledgerRepo) Process(ctx context.Context, msg *domain.WebhookMessage, fn repository.DeliveryFunc) (bool, error) {
	s := (*Store)(r)
	key := ledgerKey{endpoint: msg.EndpointID, messageID: msg.MessageID}

	s.ledgerLocks.lock(key)
	defer s.ledgerLocks.unlock(key)

	s.mu.Lock()
	stored, ok := s.messages[key]
	if !ok {
		now := time.Now()
		if msg.ID == uuid.Nil {
			msg.ID = uuid.New()
		}
		stored = &domain.WebhookMessage{
			ID:         msg.ID,
			EndpointID: msg.EndpointID,
			MessageID:  msg.MessageID,
			Header:     copyHeader(msg.Header),
			Body:       append(json.RawMessage(nil), msg.Body...),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		s.messages[key] = stored
	}
	duplicate := stored.WorkedOn && stored.Header[domain.HeaderWebhookID] == msg.MessageID
	msg.ID = stored.ID
	s.mu.Unlock()

	if duplicate {
		msg.WorkedOn = true
		return false, nil
	}

	repos := s.Repositories()
	repos.DeliveryLedger = nil
	if err := fn(ctx, repos); err != nil {
		return false, err
	}

	s.mu.Lock()
	stored.WorkedOn = true
	stored.Header = copyHeader(msg.Header)
	stored.Body = append(json.RawMessage(nil), msg.Body...)
	stored.UpdatedAt = time.Now()
	s.mu.Unlock()

	msg.WorkedOn = true
	return true, nil
}

func (r *ledgerRepo) Get(_ context.Context, endpointID uuid.UUID, messageID string) (*domain.WebhookMessage, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[ledgerKey{endpoint: endpointID, messageID: messageID}]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "webhook_message", ID: messageID}
	}
	cp := *m
	cp.Header = copyHeader(m.Header)
	return &cp, nil
}

func copyHeader(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// stock items

type stockRepo Store

func (r *stockRepo) Create(_ context.Context, item *domain.StockItem) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.UpdatedAt = time.Now()
	cp := *item
	s.stock[item.ID] = &cp
	return nil
}

func (r *stockRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.StockItem, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.stock[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "stock_item", ID: id.String()}
	}
	cp := *item
	return &cp, nil
}

func (r *stockRepo) List(_ context.Context) ([]*domain.StockItem, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.StockItem, 0, len(s.stock))
	for _, item := range s.stock {
		cp := *item
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *stockRepo) SetQuantity(_ context.Context, id uuid.UUID, quantity decimal.Decimal, entry *domain.StockTrackingEntry) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.stock[id]
	if !ok {
		return &errors.ErrNotFound{Resource: "stock_item", ID: id.String()}
	}
	now := time.Now()
	item.Quantity = quantity
	item.UpdatedAt = now
	if entry != nil {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		entry.StockItemID = id
		entry.CreatedAt = now
		cp := *entry
		s.tracking[id] = append(s.tracking[id], &cp)
	}
	return nil
}

func (r *stockRepo) ListTracking(_ context.Context, stockItemID uuid.UUID) ([]*domain.StockTrackingEntry, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.StockTrackingEntry, 0, len(s.tracking[stockItemID]))
	for _, e := range s.tracking[stockItemID] {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}
