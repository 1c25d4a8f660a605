package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	App      AppConfig
	Webhook  WebhookConfig
	Store    StoreConfig
	RawLog   RawLogConfig
	Cache    CacheConfig
	Temporal TemporalConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	// ProcessTimeout bounds a delivery that keeps running after its client left.
	ProcessTimeout time.Duration `envconfig:"SERVER_PROCESS_TIMEOUT" default:"25s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string   `envconfig:"APP_NAME" default:"shopsync-api"`
	Environment string   `envconfig:"APP_ENV" default:"development"`
	Debug       bool     `envconfig:"APP_DEBUG" default:"false"`
	Version     string   `envconfig:"APP_VERSION" default:"1.0.0"`
	AdminKeys   []string `envconfig:"ADMIN_API_KEYS" default:""`
}

// WebhookConfig holds inbound delivery settings.
type WebhookConfig struct {
	Secret          string `envconfig:"SHOPIFY_WEBHOOK_SECRET" default:""`
	SignatureHeader string `envconfig:"WEBHOOK_SIGNATURE_HEADER" default:"X-Shopify-Hmac-Sha256"`
	TopicHeader     string `envconfig:"WEBHOOK_TOPIC_HEADER" default:"X-Shopify-Topic"`
	WebhookIDHeader string `envconfig:"WEBHOOK_ID_HEADER" default:"X-Shopify-Webhook-Id"`
	MaxBodyBytes    int64  `envconfig:"WEBHOOK_MAX_BODY_BYTES" default:"1048576"`
}

// StoreConfig holds entity store settings.
type StoreConfig struct {
	Type string `envconfig:"STORE_TYPE" default:"sqlite"` // sqlite or postgres
	Path string `envconfig:"STORE_SQLITE_PATH" default:"./data/shopsync.db"`
	// PostgreSQL settings
	Host     string `envconfig:"STORE_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"STORE_DB_PORT" default:"5432"`
	Name     string `envconfig:"STORE_DB_NAME" default:"shopsync"`
	User     string `envconfig:"STORE_DB_USER" default:"postgres"`
	Password string `envconfig:"STORE_DB_PASS" default:""`
	SSLMode  string `envconfig:"STORE_DB_SSLMODE" default:"disable"`

	RetryAttempts int           `envconfig:"STORE_RETRY_ATTEMPTS" default:"3"`
	RetryBackoff  time.Duration `envconfig:"STORE_RETRY_BACKOFF" default:"50ms"`
}

// RawLogConfig selects where raw deliveries are recorded.
type RawLogConfig struct {
	Type string `envconfig:"RAW_LOG_TYPE" default:"store"` // store, mongodb or mysql
	// MongoDB settings
	MongoURI        string `envconfig:"MONGODB_URI" default:""`
	MongoDatabase   string `envconfig:"MONGODB_DATABASE" default:"shopsync"`
	MongoCollection string `envconfig:"MONGODB_COLLECTION" default:"raw_events"`
	// MySQL settings
	MySQLHost     string `envconfig:"MYSQL_HOST" default:"localhost"`
	MySQLPort     int    `envconfig:"MYSQL_PORT" default:"3306"`
	MySQLName     string `envconfig:"MYSQL_NAME" default:"shopsync"`
	MySQLUser     string `envconfig:"MYSQL_USER" default:"root"`
	MySQLPassword string `envconfig:"MYSQL_PASS" default:""`
}

// CacheConfig holds processed-delivery cache settings.
type CacheConfig struct {
	Type         string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	ProcessedTTL time.Duration `envconfig:"CACHE_PROCESSED_TTL" default:"48h"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_KEY_PREFIX" default:"shopsync"`
}

// TemporalConfig holds replay workflow settings. An empty host disables replay workflows.
type TemporalConfig struct {
	HostPort  string `envconfig:"TEMPORAL_HOST" default:""`
	Namespace string `envconfig:"TEMPORAL_NAMESPACE" default:"default"`
	TaskQueue string `envconfig:"TEMPORAL_TASK_QUEUE" default:"shopsync-replay"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *StoreConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, s.Port, s.Name, s.SSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (r *RawLogConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
		r.MySQLUser, r.MySQLPassword, r.MySQLHost, r.MySQLPort, r.MySQLName)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Enabled reports whether a Temporal server is configured.
func (t *TemporalConfig) Enabled() bool {
	return t.HostPort != ""
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// Validate rejects configurations the service must not start with.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Webhook.Secret) == "" {
		errs = append(errs, errors.New("SHOPIFY_WEBHOOK_SECRET must be set"))
	}
	switch c.Store.Type {
	case "sqlite", "postgres", "postgresql":
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_TYPE %q", c.Store.Type))
	}
	switch c.RawLog.Type {
	case "store":
	case "mongodb", "mongo":
		if c.RawLog.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI must be set when RAW_LOG_TYPE is mongodb"))
		}
	case "mysql":
	default:
		errs = append(errs, fmt.Errorf("unknown RAW_LOG_TYPE %q", c.RawLog.Type))
	}
	switch c.Cache.Type {
	case "memory", "redis", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_TYPE %q", c.Cache.Type))
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("WEBHOOK_MAX_BODY_BYTES must be positive"))
	}

	return errors.Join(errs...)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
