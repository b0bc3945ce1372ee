package config

import (
	"fmt"
	"strings"
	"time"

	pkgconfig "github.com/utafrali/blossom-account/pkg/config"
	"github.com/utafrali/blossom-account/pkg/database"
)

// DefaultSecretKey is accepted only in development.
const DefaultSecretKey = "change-this-to-a-secure-secret"

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	NotifierDirect = "direct"
	NotifierKafka  = "kafka"
)

// Config holds all configuration for the account service and the mailer.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8000"`
	APIPrefix       string        `env:"API_PREFIX" envDefault:"/auth"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Storage
	Store string `env:"STORE" envDefault:"postgres"`

	// PostgreSQL
	PostgresHost  string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort  int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser  string        `env:"POSTGRES_USER" envDefault:"blossom"`
	PostgresPass  string        `env:"POSTGRES_PASSWORD" envDefault:"blossom_secret"`
	PostgresDB    string        `env:"POSTGRES_DB" envDefault:"blossom_account"`
	PostgresSSL   string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns    int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns    int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLife time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdle time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	SlowQueryMs   int           `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`
	RunMigrations bool          `env:"RUN_MIGRATIONS" envDefault:"true"`

	// Tokens
	SecretKey                string        `env:"SECRET_KEY" envDefault:"change-this-to-a-secure-secret"`
	JWTAlgorithm             string        `env:"JWT_ALGORITHM" envDefault:"HS256"`
	AccessTokenExpireMinutes int           `env:"ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"30"`
	EmailVerificationTTL     time.Duration `env:"EMAIL_VERIFICATION_TTL" envDefault:"24h"`
	BcryptCost               int           `env:"BCRYPT_COST" envDefault:"12"`

	// Email
	Notifier      string        `env:"NOTIFIER" envDefault:"direct"`
	NotifyTimeout time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
	EmailAPIKey   string        `env:"EMAIL_API_KEY"`
	EmailSender   string        `env:"EMAIL_SENDER" envDefault:"onboarding@resend.dev"`
	EmailAPIURL   string        `env:"EMAIL_API_URL" envDefault:"https://api.resend.com/emails"`
	FrontendURL   string        `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"account-mailer"`

	// Redis
	RedisEnabled  bool          `env:"REDIS_ENABLED" envDefault:"true"`
	RedisHost     string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	DedupeTTL     time.Duration `env:"MAILER_DEDUPE_TTL" envDefault:"72h"`

	// CORS and proxying
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	TrustProxyHeaders  bool     `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelInsecure   bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads .env (when present) and then the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadWithDotenv(cfg, ".env"); err != nil {
		return nil, fmt.Errorf("load account config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("API_PREFIX must start with /, got %q", c.APIPrefix)
	}
	if c.AccessTokenExpireMinutes <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be positive, got %d", c.AccessTokenExpireMinutes)
	}
	if c.EmailVerificationTTL <= 0 {
		return fmt.Errorf("EMAIL_VERIFICATION_TTL must be positive, got %s", c.EmailVerificationTTL)
	}

	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}
	switch c.Notifier {
	case NotifierDirect:
	case NotifierKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when NOTIFIER=kafka")
		}
	default:
		return fmt.Errorf("unknown NOTIFIER %q", c.Notifier)
	}

	// Outside development the secret must be set explicitly and be strong.
	if c.Environment != "development" {
		if c.SecretKey == DefaultSecretKey {
			return fmt.Errorf("SECRET_KEY must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.SecretKey) < 32 {
			return fmt.Errorf("SECRET_KEY must be at least 32 characters long, got %d", len(c.SecretKey))
		}
		if c.Store == StoreMemory {
			return fmt.Errorf("STORE=memory is only allowed in development")
		}
	}
	return nil
}

// AccessTTL is the session token lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// SlowQueryThreshold is the duration above which queries are logged.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryMs) * time.Millisecond
}

// MockEmail reports whether emails are logged instead of sent.
func (c *Config) MockEmail() bool {
	return c.EmailAPIKey == ""
}

// Postgres returns the pool configuration.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: c.DBMaxConnLife,
		MaxConnIdleTime: c.DBMaxConnIdle,
	}
}

// Redis returns the Redis client configuration.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}
