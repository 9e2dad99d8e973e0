package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Env      string `envconfig:"ENV" default:"prod"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DBDriver          string        `envconfig:"DB_DRIVER" default:"postgres"`
	DBDSN             string        `envconfig:"DB_DSN"`
	DBAutoMigrate     bool          `envconfig:"DB_AUTO_MIGRATE" default:"true"`
	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`

	LedgerMode            string        `envconfig:"LEDGER_MODE" default:"memory"`
	LedgerRPCURL          string        `envconfig:"LEDGER_RPC_URL"`
	LedgerContractAddress string        `envconfig:"LEDGER_CONTRACT_ADDRESS"`
	LedgerPrivateKey      string        `envconfig:"LEDGER_PRIVATE_KEY"`
	LedgerChainID         int64         `envconfig:"LEDGER_CHAIN_ID" default:"1"`
	LedgerTimeout         time.Duration `envconfig:"LEDGER_TIMEOUT" default:"30s"`
	LedgerBreakerFailures uint32        `envconfig:"LEDGER_BREAKER_FAILURES" default:"5"`
	LedgerBreakerCooldown time.Duration `envconfig:"LEDGER_BREAKER_COOLDOWN" default:"30s"`
	LedgerStatusCacheTTL  time.Duration `envconfig:"LEDGER_STATUS_CACHE_TTL" default:"30s"`

	IPFSAPIURL string `envconfig:"IPFS_API_URL"`

	AuthMode      string `envconfig:"AUTH_MODE" default:"jwt"`
	SessionSecret string `envconfig:"SESSION_SECRET"`
	SessionIssuer string `envconfig:"SESSION_ISSUER" default:"certledger"`
	AuthzMode     string `envconfig:"AUTHZ_MODE" default:"opa"`

	RateLimitMode     string        `envconfig:"RATE_LIMIT_MODE" default:"memory"`
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"0"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitMaxKeys  int           `envconfig:"RATE_LIMIT_MAX_KEYS" default:"10000"`
	RateLimitFailOpen bool          `envconfig:"RATE_LIMIT_FAIL_OPEN" default:"true"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	SyncInterval    time.Duration `envconfig:"SYNC_INTERVAL" default:"5m"`
	SyncBatchLimit  int           `envconfig:"SYNC_BATCH_LIMIT" default:"100"`
	SyncMaxAttempts int           `envconfig:"SYNC_MAX_ATTEMPTS" default:"0"`
	SyncLockTTL     time.Duration `envconfig:"SYNC_LOCK_TTL" default:"2m"`

	BatchDelay time.Duration `envconfig:"BATCH_DELAY" default:"500ms"`
	BatchRate  float64       `envconfig:"BATCH_RATE" default:"0"`
}

// FromEnv reads the process environment. Unset variables take their defaults.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.LedgerMode = strings.ToLower(strings.TrimSpace(c.LedgerMode))
	c.AuthMode = strings.ToLower(strings.TrimSpace(c.AuthMode))
	c.AuthzMode = strings.ToLower(strings.TrimSpace(c.AuthzMode))
	c.RateLimitMode = strings.ToLower(strings.TrimSpace(c.RateLimitMode))
}

func (c Config) IsDev() bool {
	return c.Env == "dev" || c.Env == "development" || c.Env == "local"
}

func (c Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case "postgres":
		if strings.TrimSpace(c.DBDSN) == "" {
			errs = append(errs, errors.New("DB_DSN is required for postgres"))
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}
	switch c.LedgerMode {
	case "memory":
		if !c.IsDev() {
			errs = append(errs, errors.New("LEDGER_MODE=memory is only allowed when ENV=dev"))
		}
	case "evm":
		if c.LedgerRPCURL == "" || c.LedgerContractAddress == "" || c.LedgerPrivateKey == "" {
			errs = append(errs, errors.New("LEDGER_RPC_URL, LEDGER_CONTRACT_ADDRESS and LEDGER_PRIVATE_KEY are required for evm"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported LEDGER_MODE %q", c.LedgerMode))
	}
	switch c.AuthMode {
	case "jwt":
		if len(c.SessionSecret) < 32 {
			errs = append(errs, errors.New("SESSION_SECRET must be at least 32 bytes"))
		}
	case "header":
		if !c.IsDev() {
			errs = append(errs, errors.New("AUTH_MODE=header is only allowed when ENV=dev"))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("unsupported AUTH_MODE %q", c.AuthMode))
	}
	switch c.AuthzMode {
	case "opa", "rbac":
	default:
		errs = append(errs, fmt.Errorf("unsupported AUTHZ_MODE %q", c.AuthzMode))
	}
	switch c.RateLimitMode {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for RATE_LIMIT_MODE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported RATE_LIMIT_MODE %q", c.RateLimitMode))
	}
	if c.SyncBatchLimit <= 0 {
		errs = append(errs, errors.New("SYNC_BATCH_LIMIT must be positive"))
	}
	if c.BatchDelay < 0 {
		errs = append(errs, errors.New("BATCH_DELAY must not be negative"))
	}
	return errors.Join(errs...)
}
