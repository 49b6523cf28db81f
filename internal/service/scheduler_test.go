package service

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/config"
	"github.com/invenhost/inventree-shopify/internal/domain"
	"github.com/invenhost/inventree-shopify/pkg/errors"
)

type MockPullFunc func(ctx context.Context) (*PullResult, error)

func (f MockPullFunc) Pull(ctx context.Context) (*PullResult, error) { return f(ctx) }

type MockReconcileFunc func(ctx context.Context, selfHost string, desired []domain.Topic) ([]domain.WebhookDescriptor, error)

func (f MockReconcileFunc) Reconcile(ctx context.Context, selfHost string, desired []domain.Topic) ([]domain.WebhookDescriptor, error) {
	return f(ctx, selfHost, desired)
}

func noReconcile(context.Context, string, []domain.Topic) ([]domain.WebhookDescriptor, error) {
	return nil, nil
}

func transient() error {
	return &errors.ErrRemoteCall{Method: "GET", Endpoint: "products.json", Err: context.DeadlineExceeded}
}

func newTestScheduler(p PullRunner, r WebhookReconciler, cfg config.SyncConfig, host string) *Scheduler {
	s := NewScheduler(p, r, cfg, host, []domain.Topic{domain.TopicInventoryLevelsUpdate}, zap.NewNop())
	s.newBackoff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return s
}

func TestScheduler_RunsJobsUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	var pulls, reconciles atomic.Int32
	pull := MockPullFunc(func(context.Context) (*PullResult, error) {
		pulls.Add(1)
		return &PullResult{}, nil
	})
	reconcile := MockReconcileFunc(func(_ context.Context, host string, desired []domain.Topic) ([]domain.WebhookDescriptor, error) {
		assert.Equal(t, "inventory.example.com", host)
		assert.Equal(t, []domain.Topic{domain.TopicInventoryLevelsUpdate}, desired)
		reconciles.Add(1)
		return nil, nil
	})

	s := newTestScheduler(pull, reconcile, config.SyncConfig{
		PullInterval:      5 * time.Millisecond,
		ReconcileInterval: 5 * time.Millisecond,
	}, "inventory.example.com")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return pulls.Load() >= 2 && reconciles.Load() >= 2
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_DisabledJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	var reconciles atomic.Int32
	pull := MockPullFunc(func(context.Context) (*PullResult, error) {
		t.Error("pull should be disabled")
		return nil, nil
	})
	reconcile := MockReconcileFunc(func(context.Context, string, []domain.Topic) ([]domain.WebhookDescriptor, error) {
		reconciles.Add(1)
		return nil, nil
	})

	s := newTestScheduler(pull, reconcile, config.SyncConfig{ReconcileInterval: time.Hour}, "")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.Zero(t, reconciles.Load())
}

func TestScheduler_RetriesTransientFailures(t *testing.T) {
	var calls int
	pull := MockPullFunc(func(context.Context) (*PullResult, error) {
		calls++
		if calls < 3 {
			return nil, transient()
		}
		return &PullResult{Products: 1}, nil
	})

	s := newTestScheduler(pull, MockReconcileFunc(noReconcile), config.SyncConfig{MaxRetries: 3}, "")
	s.runPull(context.Background())
	assert.Equal(t, 3, calls)
}

func TestScheduler_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int
	pull := MockPullFunc(func(context.Context) (*PullResult, error) {
		calls++
		return nil, transient()
	})

	s := newTestScheduler(pull, MockReconcileFunc(noReconcile), config.SyncConfig{MaxRetries: 2}, "")
	s.runPull(context.Background())
	assert.Equal(t, 3, calls)
}

func TestScheduler_DoesNotRetryErrorEnvelopes(t *testing.T) {
	var calls int
	pull := MockPullFunc(func(context.Context) (*PullResult, error) {
		calls++
		return nil, &errors.ErrRemoteCatalog{Status: 401, Body: `{"errors":"unauthorized"}`}
	})

	s := newTestScheduler(pull, MockReconcileFunc(noReconcile), config.SyncConfig{MaxRetries: 5}, "")
	err := s.retry(context.Background(), "pull", func() error {
		_, err := s.puller.Pull(context.Background())
		return err
	})

	var catalogErr *errors.ErrRemoteCatalog
	require.True(t, stderrors.As(err, &catalogErr))
	assert.Equal(t, 1, calls)
}

func TestScheduler_PullNowDoesNotOverlap(t *testing.T) {
	var active, maxActive atomic.Int32
	pull := MockPullFunc(func(context.Context) (*PullResult, error) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return &PullResult{}, nil
	})

	s := newTestScheduler(pull, MockReconcileFunc(noReconcile), config.SyncConfig{}, "")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.PullNow(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestScheduler_PullNowRunsDuringBackoff(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int32
	pull := MockPullFunc(func(context.Context) (*PullResult, error) {
		if calls.Add(1) == 1 {
			return nil, transient()
		}
		return &PullResult{Products: 2}, nil
	})

	s := newTestScheduler(pull, MockReconcileFunc(noReconcile), config.SyncConfig{MaxRetries: 1}, "")
	s.newBackoff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.runPull(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	pullCtx, pullCancel := context.WithTimeout(context.Background(), time.Second)
	defer pullCancel()
	res, err := s.PullNow(pullCtx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Products)

	cancel()
	<-done
}

func TestScheduler_PullNowGivesUpWaiting(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	pull := MockPullFunc(func(context.Context) (*PullResult, error) {
		close(started)
		<-release
		return &PullResult{}, nil
	})

	s := newTestScheduler(pull, MockReconcileFunc(noReconcile), config.SyncConfig{}, "")
	go func() { _, _ = s.PullNow(context.Background()) }()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.PullNow(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestScheduler_ReconcileNowDefaultsToConfiguredHost(t *testing.T) {
	var got string
	reconcile := MockReconcileFunc(func(_ context.Context, host string, _ []domain.Topic) ([]domain.WebhookDescriptor, error) {
		got = host
		return nil, nil
	})

	s := newTestScheduler(MockPullFunc(nil), reconcile, config.SyncConfig{}, "inventory.example.com")

	_, err := s.ReconcileNow(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "inventory.example.com", got)

	_, err = s.ReconcileNow(context.Background(), "other.example.com")
	require.NoError(t, err)
	assert.Equal(t, "other.example.com", got)
}
