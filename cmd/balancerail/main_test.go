package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(args ...string) (string, error) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestServeRequiresFacilitator(t *testing.T) {
	t.Setenv("BALANCERAIL_FACILITATOR_URL", "")
	_, err := execute("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "facilitator-url is required")
}

func TestServeRejectsBadMerchant(t *testing.T) {
	t.Setenv("BALANCERAIL_FACILITATOR_SECRET_KEY", "sk_test")
	_, err := execute("serve",
		"--facilitator-url", "https://facilitator.example",
		"--server-wallet-address", "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		"--merchant-address", "nope",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merchant address")
}

func TestBuyRequiresPrivateKey(t *testing.T) {
	t.Setenv("BALANCERAIL_PRIVATE_KEY", "")
	_, err := execute("buy", "--tier", "basic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private-key is required")
}

func TestTiersPrintsCatalog(t *testing.T) {
	out, err := execute("tiers")
	require.NoError(t, err)
	assert.Contains(t, out, "Enterprise")
	assert.Contains(t, out, "0.50")
}

func TestVersion(t *testing.T) {
	out, err := execute("version")
	require.NoError(t, err)
	assert.Contains(t, out, "x402 v1")
}

func TestBalanceNeedsAssetOffFuji(t *testing.T) {
	t.Setenv("BALANCERAIL_ASSET_ADDRESS", "")
	_, err := execute("balance",
		"--private-key", "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
		"--rpc-url", "http://127.0.0.1:9650/ext/bc/C/rpc",
		"--network", "base-sepolia",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asset address is required")
}

func TestServeRejectsSchemelessOrigin(t *testing.T) {
	_, err := execute("serve",
		"--facilitator-url", "https://facilitator.example",
		"--facilitator-secret-key", "sk_test",
		"--server-wallet-address", "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		"--merchant-address", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		"--allowed-origins", "localhost:3000",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allowed origins")
}
