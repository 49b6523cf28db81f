package memory

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invenhost/inventree-shopify/internal/domain"
	"github.com/invenhost/inventree-shopify/internal/repository"
)

func ledgerMessage(endpoint uuid.UUID, id string) *domain.WebhookMessage {
	return &domain.WebhookMessage{
		EndpointID: endpoint,
		MessageID:  id,
		Header:     map[string]string{domain.HeaderWebhookID: id},
		Body:       []byte(`{}`),
	}
}

func TestLedger_ProcessRunsOnce(t *testing.T) {
	s := NewStore()
	ledger := s.Repositories().DeliveryLedger
	ctx := context.Background()
	endpoint := uuid.New()

	var runs int
	fn := func(_ context.Context, repos *repository.Repositories) error {
		runs++
		assert.Nil(t, repos.DeliveryLedger)
		return repos.Product.Upsert(ctx, &domain.Product{ID: 1, Title: "Bolt"})
	}

	processed, err := ledger.Process(ctx, ledgerMessage(endpoint, "m-1"), fn)
	require.NoError(t, err)
	assert.True(t, processed)

	processed, err = ledger.Process(ctx, ledgerMessage(endpoint, "m-1"), fn)
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Equal(t, 1, runs)

	p, err := s.Repositories().Product.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Bolt", p.Title)
}

func TestLedger_FailedHandlerStaysUnworked(t *testing.T) {
	s := NewStore()
	ledger := s.Repositories().DeliveryLedger
	ctx := context.Background()
	endpoint := uuid.New()

	boom := stderrors.New("boom")
	_, err := ledger.Process(ctx, ledgerMessage(endpoint, "m-1"), func(context.Context, *repository.Repositories) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	msg, err := ledger.Get(ctx, endpoint, "m-1")
	require.NoError(t, err)
	assert.False(t, msg.WorkedOn)

	processed, err := ledger.Process(ctx, ledgerMessage(endpoint, "m-1"), func(context.Context, *repository.Repositories) error {
		return nil
	})
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestLedger_LocksAreReleased(t *testing.T) {
	s := NewStore()
	ledger := s.Repositories().DeliveryLedger
	ctx := context.Background()
	endpoint := uuid.New()

	var mu sync.Mutex
	runs := make(map[string]int)
	fn := func(id string) repository.DeliveryFunc {
		return func(context.Context, *repository.Repositories) error {
			mu.Lock()
			runs[id]++
			mu.Unlock()
			return nil
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("m-%d", i%10)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Process(ctx, ledgerMessage(endpoint, id), fn(id))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, runs, 10)
	for id, n := range runs {
		assert.Equal(t, 1, n, id)
	}
	assert.Zero(t, s.ledgerLocks.size())
}
