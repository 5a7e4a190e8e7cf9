package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	c := Default()
	c.Settlement.Treasury = "treasury"
	c.Auth.JWTSecret = "secret"
	return c
}

func TestLoadConfigLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"port": 9000, "read_timeout": "3s"},
		"settlement": {"fee_rate_numerator": 5, "treasury": "from-file"},
		"identity": {"challenge_ttl": "30m"}
	}`), 0o600))

	t.Setenv("TREASURY_ADDRESS", "from-env")
	t.Setenv("SOLANA_CUSTODIAL_KEYS", "key1, key2,,")
	t.Setenv("SETTLEMENT_SUBMIT_TIMEOUT", "1m")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout.Std())
	assert.Equal(t, uint64(5), cfg.Settlement.FeeRateNumerator)
	assert.Equal(t, uint64(100), cfg.Settlement.FeeRateDenominator, "defaults survive a partial file")
	assert.Equal(t, "from-env", cfg.Settlement.Treasury)
	assert.Equal(t, []string{"key1", "key2"}, cfg.Solana.CustodialKeys)
	assert.Equal(t, time.Minute, cfg.Settlement.SubmitTimeout.Std())
	assert.Equal(t, 30*time.Minute, cfg.Identity.ChallengeTTL.Std())
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server": {"read_timeout": "soon"}}`), 0o600))
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "failed to parse config file")

	t.Setenv("FEE_RATE_NUMERATOR", "ten")
	_, err = LoadConfig("")
	assert.ErrorContains(t, err, "FEE_RATE_NUMERATOR")
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero denominator", func(c *Config) { c.Settlement.FeeRateDenominator = 0 }},
		{"rate above 100%", func(c *Config) { c.Settlement.FeeRateNumerator = 101 }},
		{"missing treasury", func(c *Config) { c.Settlement.Treasury = "" }},
		{"bad decimals", func(c *Config) { c.Settlement.Decimals = 19 }},
		{"zero submit timeout", func(c *Config) { c.Settlement.SubmitTimeout = 0 }},
		{"zero verify timeout", func(c *Config) { c.Identity.VerifyTimeout = 0 }},
		{"missing jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"rpc without platform key", func(c *Config) { c.Solana.RPCURL = "http://localhost:8899" }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestGetDatabaseURL(t *testing.T) {
	db := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: 5432, DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", db.GetDatabaseURL())
}
