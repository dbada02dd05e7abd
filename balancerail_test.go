package balancerail

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/balancerail/catalog"
	"github.com/vitwit/balancerail/gate"
	"github.com/vitwit/balancerail/types"
)

type nopVerifier struct{}

func (nopVerifier) Settle(context.Context, *types.SettleRequest) (*types.SettleResult, error) {
	return &types.SettleResult{Status: 402}, nil
}

func TestPaywallBuildsGatePerTier(t *testing.T) {
	p := New(catalog.Default(), nopVerifier{}, gate.Terms{BaseURL: "http://localhost:3000"})

	gates := p.Gates()
	require.Len(t, gates, 3)
	assert.Equal(t, types.TierBasic, gates[0].Tier().ID)
	assert.Equal(t, types.TierEnterprise, gates[2].Tier().ID)

	g, err := p.Gate(types.TierPremium)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/api/premium", g.ResourceURL())

	_, err = p.Gate("gold")
	assert.True(t, errors.Is(err, types.X402Error{Code: types.ErrUnknownTier}))
}

func TestGetVersion(t *testing.T) {
	v := GetVersion()
	assert.Equal(t, Version, v["library_version"])
	assert.Equal(t, 1, v["protocol_version"])
}
