// Package catalog holds the fixed set of priced tiers a server gates.
package catalog

import (
	"fmt"
	"math/big"
	"net/url"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vitwit/balancerail/types"
	"github.com/vitwit/balancerail/utils"
	"gopkg.in/yaml.v3"
)

// Catalog is immutable after New returns.
type Catalog struct {
	tiers map[types.TierID]types.Tier
	order []types.TierID
}

// DefaultTiers returns the built-in basic / premium / enterprise tiers.
func DefaultTiers() []types.Tier {
	return []types.Tier{
		{
			ID:           types.TierBasic,
			Label:        "Basic",
			Description:  "Daily spend (coffee / transit-level)",
			Badge:        "Daily",
			PriceDisplay: "0.01",
			Amount:       10000,
			Resource:     "/api/basic",
			Data:         "Basic envelope cleared: daily spend released.",
			Features: []string{
				"Instant micro-settlement",
				"Smart Envelope receipt",
			},
		},
		{
			ID:           types.TierPremium,
			Label:        "Premium",
			Description:  "Subscription bundle",
			Badge:        "Recurring",
			PriceDisplay: "0.15",
			Amount:       150000,
			Resource:     "/api/premium",
			Data:         "Premium envelope cleared: subscription bundle unlocked.",
			Features: []string{
				"Recurring budget rail",
				"AI NISA vault accrual (simulated)",
				"Smart Envelope history",
			},
		},
		{
			ID:           types.TierEnterprise,
			Label:        "Enterprise",
			Description:  "AI NISA vault focus",
			Badge:        "AI NISA",
			PriceDisplay: "0.50",
			Amount:       500000,
			Resource:     "/api/enterprise",
			Data:         "Enterprise envelope cleared: AI NISA vault focus unlocked.",
			Features: []string{
				"Priority settlement window",
				"AI NISA vault boost (simulated)",
				"Full Smart Envelope logs",
			},
		},
	}
}

// Default is the catalog built from DefaultTiers.
func Default() *Catalog {
	c, err := New(DefaultTiers())
	if err != nil {
		panic(fmt.Sprintf("catalog: built-in tiers invalid: %v", err))
	}
	return c
}

// New validates tiers and builds a catalog preserving their order.
func New(tiers []types.Tier) (*Catalog, error) {
	if len(tiers) == 0 {
		return nil, configError("catalog has no tiers")
	}

	c := &Catalog{
		tiers: make(map[types.TierID]types.Tier, len(tiers)),
		order: make([]types.TierID, 0, len(tiers)),
	}
	resources := make(map[string]types.TierID, len(tiers))

	for _, tier := range tiers {
		if err := Validate(tier); err != nil {
			return nil, err
		}
		if _, dup := c.tiers[tier.ID]; dup {
			return nil, configError("duplicate tier %q", tier.ID)
		}
		if other, dup := resources[tier.Resource]; dup {
			return nil, configError("tiers %q and %q share resource %s", other, tier.ID, tier.Resource)
		}
		resources[tier.Resource] = tier.ID
		tier.Features = append([]string(nil), tier.Features...)
		c.tiers[tier.ID] = tier
		c.order = append(c.order, tier.ID)
	}
	return c, nil
}

// Validate checks one tier: required fields, a positive integer amount that
// equals the display price scaled by the token decimals, and a clean path.
func Validate(tier types.Tier) error {
	if err := utils.Validator().Struct(tier); err != nil {
		return configError("tier %q: %v", tier.ID, err)
	}
	if strings.TrimSpace(tier.Label) == "" {
		return configError("tier %q: label is blank", tier.ID)
	}

	minor, err := utils.ParseAmountWithDecimals(tier.PriceDisplay, types.TokenDecimals)
	if err != nil {
		return configError("tier %q: price %q: %v", tier.ID, tier.PriceDisplay, err)
	}
	if minor.Cmp(big.NewInt(tier.Amount)) != 0 {
		return configError("tier %q: price %s is %s minor units, catalog says %d",
			tier.ID, tier.PriceDisplay, minor, tier.Amount)
	}

	u, err := url.Parse(tier.Resource)
	if err != nil {
		return configError("tier %q: resource %q: %v", tier.ID, tier.Resource, err)
	}
	if u.IsAbs() || u.Host != "" || u.RawQuery != "" || u.Fragment != "" ||
		!strings.HasPrefix(u.Path, "/") || strings.Contains(u.Path, "//") || strings.HasSuffix(u.Path, "/") {
		return configError("tier %q: resource %q is not a clean absolute path", tier.ID, tier.Resource)
	}
	return nil
}

// Lookup returns the tier for id.
func (c *Catalog) Lookup(id types.TierID) (types.Tier, bool) {
	t, ok := c.tiers[id]
	return t, ok
}

// Get is Lookup with an UNKNOWN_TIER error for callers that take ids from users.
func (c *Catalog) Get(id types.TierID) (types.Tier, error) {
	t, ok := c.tiers[id]
	if !ok {
		return types.Tier{}, &types.X402Error{
			Code:    types.ErrUnknownTier,
			Message: fmt.Sprintf("unknown tier %q", id),
		}
	}
	return t, nil
}

// Tiers returns the tiers in catalog order.
func (c *Catalog) Tiers() []types.Tier {
	out := make([]types.Tier, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.tiers[id])
	}
	return out
}

// DecimalAmount converts a tier's minor-unit price into token units.
func DecimalAmount(t types.Tier) decimal.Decimal {
	return utils.MinorToDecimal(big.NewInt(t.Amount), types.TokenDecimals)
}

type fileFormat struct {
	Tiers []types.Tier `yaml:"tiers"`
}

// LoadFile reads a YAML catalog. An empty path yields the default catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML catalog document.
func Parse(raw []byte) (*Catalog, error) {
	var doc fileFormat
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, configError("parse catalog: %v", err)
	}
	return New(doc.Tiers)
}

func configError(format string, args ...any) error {
	return &types.X402Error{Code: types.ErrConfigError, Message: fmt.Sprintf(format, args...)}
}
