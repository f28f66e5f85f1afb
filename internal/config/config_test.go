package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("WALLET_SEED", "")
	t.Setenv("WALLET_MNEMONIC", "")
	t.Setenv("WALLET_ADDRESS", "")
	t.Setenv("DEX_REGISTRY", "")
	c, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, 8081, c.Port)
	assert.Equal(t, 2*time.Minute, c.TxTTL)
	assert.Equal(t, 60, c.MaxPolls)
	assert.Equal(t, 15, c.EffectPolls)
	assert.Nil(t, c.WalletAddress)
	assert.NoError(t, c.Validate())

	_, err = c.PrivateKey()
	assert.Error(t, err)
}

func TestParseWalletAndRegistry(t *testing.T) {
	registry := filepath.Join(t.TempDir(), "dex.yaml")
	require.NoError(t, os.WriteFile(registry, []byte(`
stonfi:
  router: "0:0000000000000000000000000000000000000000000000000000000000000001"
  pton: "0:0000000000000000000000000000000000000000000000000000000000000002"
`), 0o600))
	t.Setenv("DEX_REGISTRY", registry)
	t.Setenv("WALLET_SEED", "0101010101010101010101010101010101010101010101010101010101010101")
	t.Setenv("WALLET_ADDRESS", "0:0000000000000000000000000000000000000000000000000000000000000003")
	t.Setenv("LOG_LEVEL", "DEBUG")

	c, err := Parse()
	require.NoError(t, err)
	require.NotNil(t, c.Registry.StonFi)
	assert.Nil(t, c.Registry.DeDust)
	require.NotNil(t, c.WalletAddress)
	assert.Equal(t, byte(3), c.WalletAddress.Address[31])

	key, err := c.PrivateKey()
	require.NoError(t, err)
	assert.Len(t, key, 64)
}

func TestParseRejectsBadAddress(t *testing.T) {
	t.Setenv("WALLET_ADDRESS", "nope")
	_, err := Parse()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{TxTTL: time.Minute, MaxPolls: 10, EffectPolls: 5}
	for _, tt := range []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no polls", func(c *Config) { c.MaxPolls = 0 }, "MAX_POLLS"},
		{"no effect polls", func(c *Config) { c.EffectPolls = 0 }, "EFFECT_POLLS"},
		{"no ttl", func(c *Config) { c.TxTTL = 0 }, "TX_TTL"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
