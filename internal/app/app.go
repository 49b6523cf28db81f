// Package app assembles the sync engine from configuration for the server and CLI tools.
package app

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/invenhost/inventree-shopify/internal/config"
	"github.com/invenhost/inventree-shopify/internal/metrics"
	"github.com/invenhost/inventree-shopify/internal/repository"
	"github.com/invenhost/inventree-shopify/internal/repository/memory"
	"github.com/invenhost/inventree-shopify/internal/repository/postgres"
	"github.com/invenhost/inventree-shopify/internal/service"
	"github.com/invenhost/inventree-shopify/internal/shopify"
)

// App holds the wired engine and whatever must be closed on exit
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Repos    *repository.Repositories
	Services *service.Services
	Metrics  *metrics.Metrics

	db    *sql.DB
	redis *redis.Client
}

// LoadConfig loads .env into the environment when present, then reads the config
func LoadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return config.Load()
}

// NewLogger builds a production or development logger at LOG_LEVEL
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	var zc zap.Config
	if cfg.Environment == "production" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// New opens storage, the lock backend and the remote client, and builds the services
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(reg)

	switch cfg.Storage {
	case "memory":
		logger.Warn("Using in-memory storage, state is lost on exit")
		a.Repos = memory.NewRepositories()
	default:
		db, err := postgres.NewConnection(cfg.Database)
		if err != nil {
			return nil, err
		}
		a.db = db
		if err := postgres.RunMigrations(ctx, db); err != nil {
			a.Close()
			return nil, err
		}
		a.Repos = postgres.NewRepositories(db, logger)
	}

	var locker service.Locker = service.NewMutexLocker()
	if cfg.Redis.Enabled {
		rdb, err := service.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = rdb
		locker = service.NewRedisLocker(rdb, 5*time.Minute, logger)
	}

	remote := shopify.NewClient(cfg.Shopify, logger.Named("shopify"))
	svc, err := service.NewServices(cfg, remote, a.Repos, locker, a.Metrics, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Services = svc

	return a, nil
}

// Close releases the database and redis connections
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("Failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Warn("Failed to close database", zap.Error(err))
		}
	}
}
