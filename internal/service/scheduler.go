package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/config"
	"github.com/invenhost/inventree-shopify/internal/domain"
	"github.com/invenhost/inventree-shopify/pkg/errors"
)

// PullRunner is satisfied by *Puller
type PullRunner interface {
	Pull(ctx context.Context) (*PullResult, error)
}

// WebhookReconciler is satisfied by *Registrar
type WebhookReconciler interface {
	Reconcile(ctx context.Context, selfHost string, desired []domain.Topic) ([]domain.WebhookDescriptor, error)
}

// Scheduler drives pulls and webhook reconciliation on a cadence. Transport
// failures are retried with exponential backoff inside a run; error envelopes
// wait for the next tick.
type Scheduler struct {
	puller     PullRunner
	registrar  WebhookReconciler
	sync       config.SyncConfig
	selfHost   string
	topics     []domain.Topic
	logger     *zap.Logger
	newBackoff func() backoff.BackOff

	// pullSem admits one pull attempt at a time
	pullSem chan struct{}
}

// NewScheduler creates a scheduler. An interval of zero disables that job,
// as does an empty self host for reconciliation.
func NewScheduler(puller PullRunner, registrar WebhookReconciler, syncCfg config.SyncConfig, selfHost string, topics []domain.Topic, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		puller:    puller,
		registrar: registrar,
		sync:      syncCfg,
		selfHost:  selfHost,
		topics:    topics,
		logger:    logger,
		pullSem:   make(chan struct{}, 1),
		newBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
}

// PullNow runs one pull without retries. Scheduled and manual pulls never
// overlap; a scheduled run in backoff does not hold the pull slot between
// attempts. Waiting for the slot ends with ctx.
func (s *Scheduler) PullNow(ctx context.Context) (*PullResult, error) {
	return s.pullOnce(ctx)
}

func (s *Scheduler) pullOnce(ctx context.Context) (*PullResult, error) {
	select {
	case s.pullSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.pullSem }()
	return s.puller.Pull(ctx)
}

// ReconcileNow runs one reconciliation against host, or the configured host when empty
func (s *Scheduler) ReconcileNow(ctx context.Context, host string) ([]domain.WebhookDescriptor, error) {
	if host == "" {
		host = s.selfHost
	}
	return s.registrar.Reconcile(ctx, host, s.topics)
}

// Run executes both jobs once, then on their intervals until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	var pullC, reconcileC <-chan time.Time

	if s.sync.PullInterval > 0 {
		s.runPull(ctx)
		t := time.NewTicker(s.sync.PullInterval)
		defer t.Stop()
		pullC = t.C
	}
	if s.sync.ReconcileInterval > 0 && s.selfHost != "" {
		s.runReconcile(ctx)
		t := time.NewTicker(s.sync.ReconcileInterval)
		defer t.Stop()
		reconcileC = t.C
	}

	s.logger.Info("Sync scheduler started",
		zap.Duration("pull_interval", s.sync.PullInterval),
		zap.Duration("reconcile_interval", s.sync.ReconcileInterval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sync scheduler stopped")
			return nil
		case <-pullC:
			s.runPull(ctx)
		case <-reconcileC:
			s.runReconcile(ctx)
		}
	}
}

func (s *Scheduler) runPull(ctx context.Context) {
	var res *PullResult
	err := s.retry(ctx, "pull", func() error {
		var err error
		res, err = s.pullOnce(ctx)
		return err
	})
	if err != nil {
		s.logger.Error("Scheduled pull failed", zap.Error(err))
		return
	}
	s.logger.Info("Scheduled pull finished",
		zap.Int("products", res.Products),
		zap.Int("levels", res.Levels),
	)
}

func (s *Scheduler) runReconcile(ctx context.Context) {
	var hooks []domain.WebhookDescriptor
	err := s.retry(ctx, "reconcile", func() error {
		var err error
		hooks, err = s.registrar.Reconcile(ctx, s.selfHost, s.topics)
		return err
	})
	if err != nil {
		s.logger.Error("Scheduled webhook reconciliation failed", zap.Error(err))
		return
	}
	s.logger.Info("Webhooks reconciled", zap.Int("webhooks", len(hooks)))
}

func (s *Scheduler) retry(ctx context.Context, job string, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackoff(), s.sync.MaxRetries), ctx)
	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !errors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		s.logger.Warn("Retrying after transient failure",
			zap.String("job", job),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
}
