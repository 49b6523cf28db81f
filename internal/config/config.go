package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string
	Storage     string // postgres | memory
	Database    DatabaseConfig
	Shopify     ShopifyConfig
	Webhooks    WebhookConfig
	Sync        SyncConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Admin       AdminConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type ShopifyConfig struct {
	ShopDomain   string
	AccessToken  string
	APIVersion   string
	SharedSecret string        // SHOPIFY_API_SHARED_SECRET: signs outgoing webhook deliveries
	Timeout      time.Duration // per remote call
	BaseURL      string        // optional override of https://{shop}, used against test servers
}

// WebhookConfig describes where Shopify should deliver and which topics we want
type WebhookConfig struct {
	SelfHost string
	Topics   []string
}

type SyncConfig struct {
	PullInterval      time.Duration
	ReconcileInterval time.Duration
	MaxRetries        uint64
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers    []string // empty disables the stock consumer
	StockTopic string
	GroupID    string
}

type AdminConfig struct {
	APIKeyHash  string // bcrypt hash; empty disables the admin routes
	SettingsURL string
	PullTimeout time.Duration // stays below the server write timeout
}

func Load() (*Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("LOG_LEVEL", "info")

	viper.AutomaticEnv()

	// .env is optional
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	timeout, err := getDurationOrViper("SHOPIFY_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	pullInterval, err := getDurationOrViper("PULL_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	reconcileInterval, err := getDurationOrViper("RECONCILE_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	adminPullTimeout, err := getDurationOrViper("ADMIN_PULL_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	redisDB, err := strconv.Atoi(getEnvOrViper("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("REDIS_DB must be an integer: %w", err)
	}
	maxRetries, err := strconv.ParseUint(getEnvOrViper("SYNC_MAX_RETRIES", "3"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("SYNC_MAX_RETRIES must be a non-negative integer: %w", err)
	}

	cfg := &Config{
		Port:        getEnvOrViper("PORT", "8080"),
		Environment: getEnvOrViper("ENVIRONMENT", "development"),
		LogLevel:    getEnvOrViper("LOG_LEVEL", "info"),
		Storage:     strings.ToLower(getEnvOrViper("STORAGE", "postgres")),
		Database: DatabaseConfig{
			Host:     getEnvOrViper("DB_HOST", "localhost"),
			Port:     getEnvOrViper("DB_PORT", "5432"),
			User:     getEnvOrViper("DB_USER", "postgres"),
			Password: getEnvOrViper("DB_PASSWORD", "postgres"),
			DBName:   getEnvOrViper("DB_NAME", "inventory_sync"),
			SSLMode:  getEnvOrViper("DB_SSLMODE", "disable"),
		},
		Shopify: ShopifyConfig{
			ShopDomain:   strings.TrimSpace(getEnvOrViper("SHOPIFY_SHOP_DOMAIN", "")),
			AccessToken:  strings.TrimSpace(getEnvOrViper("SHOPIFY_ACCESS_TOKEN", "")),
			APIVersion:   getEnvOrViper("SHOPIFY_API_VERSION", "2023-04"),
			SharedSecret: strings.TrimSpace(getEnvOrViper("SHOPIFY_API_SHARED_SECRET", "")),
			Timeout:      timeout,
			BaseURL:      strings.TrimSpace(getEnvOrViper("SHOPIFY_BASE_URL", "")),
		},
		Webhooks: WebhookConfig{
			SelfHost: strings.TrimSpace(getEnvOrViper("WEBHOOK_SELF_HOST", "")),
			Topics:   splitList(getEnvOrViper("WEBHOOK_TOPICS", "inventory_levels/update")),
		},
		Sync: SyncConfig{
			PullInterval:      pullInterval,
			ReconcileInterval: reconcileInterval,
			MaxRetries:        maxRetries,
		},
		Redis: RedisConfig{
			Enabled:  strings.EqualFold(getEnvOrViper("REDIS_ENABLED", "false"), "true"),
			Addr:     getEnvOrViper("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrViper("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(getEnvOrViper("KAFKA_BROKERS", "")),
			StockTopic: getEnvOrViper("KAFKA_STOCK_TOPIC", "stock.changed"),
			GroupID:    getEnvOrViper("KAFKA_GROUP_ID", "inventory-sync"),
		},
		Admin: AdminConfig{
			APIKeyHash:  strings.TrimSpace(getEnvOrViper("ADMIN_API_KEY_HASH", "")),
			SettingsURL: getEnvOrViper("ADMIN_SETTINGS_URL", "/admin/shopify/settings"),
			PullTimeout: adminPullTimeout,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and enumerated values
func (c *Config) Validate() error {
	if c.Shopify.ShopDomain == "" {
		return fmt.Errorf("SHOPIFY_SHOP_DOMAIN is required")
	}
	if c.Shopify.AccessToken == "" {
		return fmt.Errorf("SHOPIFY_ACCESS_TOKEN is required")
	}
	if c.Storage != "postgres" && c.Storage != "memory" {
		return fmt.Errorf("STORAGE must be postgres or memory, got %q", c.Storage)
	}
	return nil
}

func getEnvOrViper(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}

func getDurationOrViper(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnvOrViper(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (e.g. 30s): %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
