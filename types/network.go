package types

// Network represents supported blockchain networks
type Network string

const (
	NetworkAvalanche     Network = "avalanche"
	NetworkAvalancheFuji Network = "avalanche-fuji" // testnet
	NetworkBase          Network = "base"
	NetworkBaseSepolia   Network = "base-sepolia" // testnet
)

var chainIDs = map[Network]int64{
	NetworkAvalanche:     43114,
	NetworkAvalancheFuji: 43113,
	NetworkBase:          8453,
	NetworkBaseSepolia:   84532,
}

// ChainID returns the EIP-155 chain id and whether the network is known.
func (n Network) ChainID() (int64, bool) {
	id, ok := chainIDs[n]
	return id, ok
}

func (n Network) IsSupported() bool {
	_, ok := chainIDs[n]
	return ok
}

func (n Network) String() string {
	return string(n)
}

// Fuji defaults for the demo token.
const (
	USDCFujiAddress  = "0x5425890298aed601595a70AB815c96711a31Bc65"
	TokenDisplayName = "USDC.e (JPYC demo)"
	TokenDecimals    = 6
	TokenEIP712Name  = "USD Coin"
	TokenEIP712Ver   = "2"
)
