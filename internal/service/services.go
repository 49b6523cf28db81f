package service

import (
	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/config"
	"github.com/invenhost/inventree-shopify/internal/domain"
	"github.com/invenhost/inventree-shopify/internal/metrics"
	"github.com/invenhost/inventree-shopify/internal/repository"
)

// Services wires the sync engine around one remote client and one store
type Services struct {
	Remote    RemoteClient
	Puller    *Puller
	Registrar *Registrar
	Receiver  *Receiver
	Pusher    *Pusher
	Scheduler *Scheduler
}

// NewServices builds every service from cfg. It fails on unknown webhook topics.
func NewServices(cfg *config.Config, remote RemoteClient, repos *repository.Repositories, locker Locker, m *metrics.Metrics, logger *zap.Logger) (*Services, error) {
	topics, err := domain.ParseTopics(cfg.Webhooks.Topics)
	if err != nil {
		return nil, err
	}

	puller := NewPuller(remote, repos, m, logger.Named("puller"))
	registrar := NewRegistrar(remote, repos, locker, cfg.Shopify.SharedSecret, m, logger.Named("registrar"))

	return &Services{
		Remote:    remote,
		Puller:    puller,
		Registrar: registrar,
		Receiver:  NewReceiver(repos, m, logger.Named("receiver")),
		Pusher:    NewPusher(remote, repos, m, logger.Named("pusher")),
		Scheduler: NewScheduler(puller, registrar, cfg.Sync, cfg.Webhooks.SelfHost, topics, logger.Named("scheduler")),
	}, nil
}
