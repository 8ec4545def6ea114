package app

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/truecredit/authserver/internal/auth/service"
	"github.com/truecredit/authserver/internal/auth/store/drivers/redis"
	"github.com/truecredit/authserver/pkg/httpx"
	"github.com/truecredit/authserver/pkg/jwtx"
)

// Token ledger backends.
const (
	LedgerSQLite = "sqlite"
	LedgerRedis  = "redis"
)

var ErrInvalidConfig = errors.New("app: invalid configuration")

type Config struct {
	Issuer string // Issuer claim and base URL of the endpoints (default: http://localhost:8080)

	Algorithm      string // JWT signing algorithm (RS256, ES256, EdDSA) (default: EdDSA)
	SigningKeyFile string // Required: PKCS8 PEM signing key, sealed when MasterKeyFile is set
	SigningKeyID   string // Optional: kid header, defaults to the key thumbprint
	MasterKeyFile  string // Optional: master key used to open the sealed signing key
	EncryptionKey  string // Optional: base64 32-byte A256GCM key for locally validated audiences

	DatabaseFile         string // SQLite database file (default: auth.db)
	Pepper               string // Pepper mixed into secret and password hashes
	BootstrapFile        string // Optional: YAML descriptors replacing the built-in set
	ResourceServerSecret string // Secret of resource_server_1, required without BootstrapFile

	TokenLedger string // sqlite or redis (default: sqlite)
	Redis       redis.Config

	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	IdentityTokenTTL time.Duration
	CodeTTL          time.Duration
	SessionTTL       time.Duration
	FlowTimeout      time.Duration

	Env                  string // Environment (dev, staging, prod) (default: dev)
	LogLevel             string // Log level (debug, info, warn, error) (default: info)
	LogFormat            string // Log format (json, text) (default: json)
	Port                 int    // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration
	HousekeepingInterval time.Duration

	RateLimits httpx.RateLimitProfiles
}

func LoadConfig() Config {
	return Config{
		Issuer:         getEnvOrDefault("AUTH_ISSUER", "http://localhost:8080"),
		Algorithm:      getEnvOrDefault("AUTH_ALGORITHM", jwtx.AlgorithmEdDSA),
		SigningKeyFile: os.Getenv("AUTH_SIGNING_KEY_FILE"),
		SigningKeyID:   os.Getenv("AUTH_SIGNING_KEY_ID"),
		MasterKeyFile:  os.Getenv("AUTH_MASTER_KEY_FILE"),
		EncryptionKey:  os.Getenv("AUTH_ENCRYPTION_KEY"),

		DatabaseFile:         getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		Pepper:               os.Getenv("AUTH_PEPPER"),
		BootstrapFile:        os.Getenv("AUTH_BOOTSTRAP_FILE"),
		ResourceServerSecret: os.Getenv("AUTH_RESOURCE_SERVER_SECRET"),

		TokenLedger: getEnvOrDefault("AUTH_TOKEN_LEDGER", LedgerSQLite),
		Redis: redis.Config{
			Addr:      os.Getenv("REDIS_ADDR"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        getEnvIntOrDefault("REDIS_DB", 0),
			KeyPrefix: getEnvOrDefault("REDIS_KEY_PREFIX", "auth:"),
		},

		AccessTokenTTL:   getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_TTL", service.DefaultAccessTTL),
		RefreshTokenTTL:  getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_TTL", service.DefaultRefreshTTL),
		IdentityTokenTTL: getEnvDurationOrDefault("AUTH_IDENTITY_TOKEN_TTL", service.DefaultIdentityTTL),
		CodeTTL:          getEnvDurationOrDefault("AUTH_CODE_TTL", service.DefaultCodeTTL),
		SessionTTL:       getEnvDurationOrDefault("AUTH_SESSION_TTL", service.DefaultSessionTTL),
		FlowTimeout:      getEnvDurationOrDefault("AUTH_FLOW_TIMEOUT", 10*time.Second),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),

		RateLimits: httpx.RateLimitProfilesFromEnv(),
	}
}

// Validate reports every problem at once, each wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Issuer == "" {
		bad("AUTH_ISSUER is required")
	}
	switch c.Algorithm {
	case jwtx.AlgorithmRS256, jwtx.AlgorithmES256, jwtx.AlgorithmEdDSA:
	default:
		bad("AUTH_ALGORITHM %q is not supported", c.Algorithm)
	}
	if c.SigningKeyFile == "" {
		bad("AUTH_SIGNING_KEY_FILE is required")
	}
	if c.EncryptionKey != "" {
		if _, err := c.encryptionKey(); err != nil {
			bad("AUTH_ENCRYPTION_KEY: %v", err)
		}
	}
	if c.BootstrapFile == "" && c.ResourceServerSecret == "" {
		bad("AUTH_RESOURCE_SERVER_SECRET is required without AUTH_BOOTSTRAP_FILE")
	}
	switch c.TokenLedger {
	case LedgerSQLite:
	case LedgerRedis:
		if c.Redis.Addr == "" {
			bad("REDIS_ADDR is required for the redis token ledger")
		}
	default:
		bad("AUTH_TOKEN_LEDGER %q is not sqlite or redis", c.TokenLedger)
	}
	if c.Port <= 0 || c.Port > 65535 {
		bad("PORT %d is out of range", c.Port)
	}

	return errors.Join(errs...)
}

// encryptionKey decodes EncryptionKey. An empty value yields a nil key.
func (c Config) encryptionKey() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("not valid base64: %w", err)
	}
	if len(key) != jwtx.EncryptionKeySize {
		return nil, fmt.Errorf("must decode to %d bytes, got %d", jwtx.EncryptionKeySize, len(key))
	}
	return key, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
