package catalog

// Agent describes the simulated budget agent shown beside the vault. It has
// no mechanics of its own.
type Agent struct {
	ID          string   `json:"id"`
	Standard    string   `json:"standard"`
	Role        string   `json:"role"`
	Chains      []string `json:"chains"`
	Description string   `json:"description"`
}

// VaultAllocationRate is the simulated share of each completed payment
// credited to the vault.
const VaultAllocationRate = "0.015"

func BalanceRailAgent() Agent {
	return Agent{
		ID:          "balance-rail-budget-agent",
		Standard:    "ERC-8004",
		Role:        "Prepaid budget & AI NISA allocator",
		Chains:      []string{"Avalanche Fuji"},
		Description: "Agent that governs split rules between user balance, AI NISA vault and fees.",
	}
}
