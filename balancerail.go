// Package balancerail gates priced content tiers behind x402 micropayments
// settled through a remote facilitator.
package balancerail

import (
	"time"

	"github.com/vitwit/balancerail/catalog"
	"github.com/vitwit/balancerail/gate"
	"github.com/vitwit/balancerail/logger"
	"github.com/vitwit/balancerail/metrics"
	"github.com/vitwit/balancerail/types"
)

// Paywall owns one gate per catalog tier.
type Paywall struct {
	catalog *catalog.Catalog
	terms   gate.Terms
	gates   map[types.TierID]*gate.Gate
	logger  logger.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// New builds a gate for every tier in cat, all sharing verifier and terms.
func New(cat *catalog.Catalog, verifier gate.Verifier, terms gate.Terms, opts ...Option) *Paywall {
	p := &Paywall{
		catalog: cat,
		terms:   terms,
		gates:   make(map[types.TierID]*gate.Gate),
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, tier := range cat.Tiers() {
		p.gates[tier.ID] = gate.New(tier, verifier, terms,
			gate.WithLogger(p.logger),
			gate.WithMetrics(p.metrics),
			gate.WithClock(p.now),
		)
	}
	return p
}

func (p *Paywall) Catalog() *catalog.Catalog {
	return p.catalog
}

func (p *Paywall) Terms() gate.Terms {
	return p.terms
}

// Gate returns the gate guarding tier id.
func (p *Paywall) Gate(id types.TierID) (*gate.Gate, error) {
	g, ok := p.gates[id]
	if !ok {
		return nil, &types.X402Error{Code: types.ErrUnknownTier, Message: "unknown tier: " + id.String()}
	}
	return g, nil
}

// Gates returns every gate in catalog order.
func (p *Paywall) Gates() []*gate.Gate {
	out := make([]*gate.Gate, 0, len(p.gates))
	for _, tier := range p.catalog.Tiers() {
		out = append(out, p.gates[tier.ID])
	}
	return out
}

// Version information
const (
	Version         = "0.3.0"
	ProtocolVersion = int(types.X402Version1)
)

// GetVersion returns version information
func GetVersion() map[string]interface{} {
	return map[string]interface{}{
		"library_version":    Version,
		"protocol_version":   ProtocolVersion,
		"supported_networks": []string{types.NetworkAvalancheFuji.String(), types.NetworkAvalanche.String(), types.NetworkBase.String(), types.NetworkBaseSepolia.String()},
		"supported_schemes":  []string{string(types.SchemeExact)},
		"supported_standards": []string{
			"eip-3009",
		},
	}
}
