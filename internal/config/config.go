package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment         string `env:"VELO_ENV" envDefault:"development"`
	EncryptionKeyBase64 string `env:"VELO_ENCRYPTION_KEY_BASE64"`
	DBHost              string `env:"VELO_DB_HOST" envDefault:"localhost"`
	DBPort              string `env:"VELO_DB_PORT" envDefault:"5432"`
	DBUsername          string `env:"VELO_DB_USER" envDefault:"velo"`
	DBPassword          string `env:"VELO_DB_PASSWORD"`
	DBName              string `env:"VELO_DB_NAME" envDefault:"velo"`
	DBSSLMode           string `env:"VELO_DB_SSLMODE" envDefault:"disable"`
	Port                string `env:"PORT" envDefault:"8080"`
	Timezone            string `env:"TZ" envDefault:"UTC"`
	LogLevel            string `env:"VELO_LOG_LEVEL" envDefault:"info"`

	// APIToken is the bearer token accepted by the HTTP API. It authenticates as AccountEmail.
	APIToken     string `env:"VELO_API_TOKEN"`
	AccountEmail string `env:"VELO_ACCOUNT_EMAIL"`
	TestMode     bool   `env:"VELO_TEST_MODE" envDefault:"false"`

	IMAPMaxWorkers       int           `env:"VELO_IMAP_MAX_WORKERS" envDefault:"3"`
	SyncBatchSize        int           `env:"VELO_SYNC_BATCH_SIZE" envDefault:"50"`
	SyncDaysBack         int           `env:"VELO_SYNC_DAYS_BACK" envDefault:"365"`
	FetchRatePerSecond   float64       `env:"VELO_FETCH_RATE_PER_SECOND" envDefault:"5"`
	FetchRetryMaxElapsed time.Duration `env:"VELO_FETCH_RETRY_MAX_ELAPSED" envDefault:"30s"`

	DeltaSyncInterval    string `env:"VELO_DELTA_SYNC_INTERVAL" envDefault:"@every 5m"`
	CacheEvictInterval   string `env:"VELO_CACHE_EVICT_INTERVAL" envDefault:"@every 1h"`
	BackfillInterval     string `env:"VELO_BACKFILL_INTERVAL" envDefault:"@every 30m"`
	AttachmentCacheDir   string `env:"VELO_ATTACHMENT_CACHE_DIR" envDefault:"attachment_cache"`
	AttachmentCacheMaxMB int64  `env:"VELO_ATTACHMENT_CACHE_MAX_MB" envDefault:"500"`
}

// NewConfig loads configuration from the environment. In development a .env file is read first.
func NewConfig() (*Config, error) {
	environment := os.Getenv("VELO_ENV")
	if environment == "" || environment == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return fmt.Errorf("VELO_ENCRYPTION_KEY_BASE64 is required")
	}

	if c.DBPassword == "" {
		return fmt.Errorf("VELO_DB_PASSWORD is required")
	}

	if c.SyncBatchSize <= 0 {
		return fmt.Errorf("VELO_SYNC_BATCH_SIZE must be positive, got %d", c.SyncBatchSize)
	}

	if c.APIToken != "" && c.AccountEmail == "" {
		return fmt.Errorf("VELO_ACCOUNT_EMAIL is required when VELO_API_TOKEN is set")
	}

	if c.IMAPMaxWorkers <= 0 {
		return fmt.Errorf("VELO_IMAP_MAX_WORKERS must be positive, got %d", c.IMAPMaxWorkers)
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUsername,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

// AttachmentCacheMaxBytes returns the cache ceiling in bytes.
func (c *Config) AttachmentCacheMaxBytes() int64 {
	return c.AttachmentCacheMaxMB * 1024 * 1024
}
