package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/balancerail/types"
)

func validServer() ServerConfig {
	return ServerConfig{
		FacilitatorURL:       "https://facilitator.example/",
		FacilitatorSecretKey: "sk_test",
		ServerWalletAddress:  "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		MerchantAddress:      "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
	}
}

func TestServerConfigDefaults(t *testing.T) {
	cfg := validServer()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":3000", cfg.ListenAddr)
	assert.Equal(t, "http://localhost:3000", cfg.APIBaseURL)
	assert.Equal(t, "https://facilitator.example", cfg.FacilitatorURL)
	assert.Equal(t, types.NetworkAvalancheFuji, cfg.Network)
	assert.Equal(t, types.USDCFujiAddress, cfg.AssetAddress)
	assert.Equal(t, 30*time.Second, cfg.SettleTimeout)
	assert.Equal(t, 300, cfg.MaxTimeoutSeconds)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestServerConfigMissingValuesAreFatal(t *testing.T) {
	cases := map[string]func(*ServerConfig){
		"secret":      func(c *ServerConfig) { c.FacilitatorSecretKey = "" },
		"wallet":      func(c *ServerConfig) { c.ServerWalletAddress = "" },
		"merchant":    func(c *ServerConfig) { c.MerchantAddress = "" },
		"facilitator": func(c *ServerConfig) { c.FacilitatorURL = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validServer()
			mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.X402Error{Code: types.ErrConfigError}))
		})
	}
}

func TestServerConfigRejectsBadAddress(t *testing.T) {
	cfg := validServer()
	cfg.MerchantAddress = "not-an-address"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merchant address")
}

func TestServerConfigRejectsUnknownNetwork(t *testing.T) {
	cfg := validServer()
	cfg.Network = "solana"
	assert.Error(t, cfg.Validate())
}

func TestServerConfigRejectsBadOrigins(t *testing.T) {
	for _, raw := range []string{"localhost:3000", "ftp://files.example", "http://"} {
		t.Run(raw, func(t *testing.T) {
			cfg := validServer()
			cfg.AllowedOrigins = ParseAllowedOrigins(raw)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.X402Error{Code: types.ErrConfigError}))
			assert.Contains(t, err.Error(), "allowed origins")
		})
	}
}

func TestServerConfigAcceptsOrigins(t *testing.T) {
	cfg := validServer()
	cfg.AllowedOrigins = ParseAllowedOrigins("*,https://shop.example,http://localhost:5173")
	assert.NoError(t, cfg.Validate())
}

func TestClientConfig(t *testing.T) {
	cfg := ClientConfig{PrivateKey: "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:3000", cfg.APIBaseURL)
	assert.Equal(t, types.NetworkAvalancheFuji, cfg.Network)
	assert.Equal(t, types.USDCFujiAddress, cfg.AssetAddress)

	missing := ClientConfig{}
	assert.Error(t, missing.Validate())
}

func TestParseAllowedOrigins(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, ParseAllowedOrigins(" http://a, ,http://b "))
	assert.Empty(t, ParseAllowedOrigins(""))
}

func TestClientConfigAssetFollowsNetwork(t *testing.T) {
	cfg := ClientConfig{
		PrivateKey: "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
		Network:    types.NetworkBaseSepolia,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asset address is required")

	cfg.AssetAddress = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0x036CbD53842c5426634e7929541eC2318f3dCF7e", cfg.AssetAddress)
}
