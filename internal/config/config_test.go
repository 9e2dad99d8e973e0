package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("ENV", " DEV ")
	t.Setenv("LEDGER_MODE", "Memory")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Env)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, "memory", cfg.LedgerMode)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.LedgerTimeout)
	assert.Equal(t, uint32(5), cfg.LedgerBreakerFailures)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchDelay)
	assert.Equal(t, 100, cfg.SyncBatchLimit)
}

func TestFromEnv_BadDuration(t *testing.T) {
	t.Setenv("SYNC_INTERVAL", "soon")
	_, err := FromEnv()
	assert.Error(t, err)
}

func validDev() Config {
	return Config{
		Env:            "dev",
		DBDriver:       "sqlite",
		LedgerMode:     "memory",
		AuthMode:       "jwt",
		SessionSecret:  "0123456789abcdef0123456789abcdef",
		AuthzMode:      "opa",
		RateLimitMode:  "memory",
		SyncBatchLimit: 100,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validDev().Validate())

	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"postgres without dsn":  {func(c *Config) { c.DBDriver = "postgres" }, "DB_DSN"},
		"unknown driver":        {func(c *Config) { c.DBDriver = "mysql" }, "DB_DRIVER"},
		"memory ledger in prod": {func(c *Config) { c.Env = "prod" }, "LEDGER_MODE=memory"},
		"evm without rpc":       {func(c *Config) { c.LedgerMode = "evm" }, "LEDGER_RPC_URL"},
		"short secret":          {func(c *Config) { c.SessionSecret = "short" }, "SESSION_SECRET"},
		"header auth in prod": {func(c *Config) {
			c.Env = "prod"
			c.LedgerMode = "evm"
			c.LedgerRPCURL, c.LedgerContractAddress, c.LedgerPrivateKey = "http://node", "0x01", "aa"
			c.AuthMode = "header"
		}, "AUTH_MODE=header"},
		"redis limiter without addr": {func(c *Config) { c.RateLimitMode = "redis" }, "REDIS_ADDR"},
		"zero sync batch":            {func(c *Config) { c.SyncBatchLimit = 0 }, "SYNC_BATCH_LIMIT"},
		"negative batch delay":       {func(c *Config) { c.BatchDelay = -time.Second }, "BATCH_DELAY"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validDev()
			tc.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}
