package x402

// CAIP-2 network identifiers for the chains the default facilitator settles on.
const (
	// NetworkBase is Base mainnet.
	NetworkBase = "eip155:8453"

	// NetworkBaseSepolia is the Base Sepolia testnet.
	NetworkBaseSepolia = "eip155:84532"

	// NetworkEthereum is Ethereum mainnet.
	NetworkEthereum = "eip155:1"

	// NetworkPolygon is Polygon PoS mainnet.
	NetworkPolygon = "eip155:137"
)

// Official Circle USDC contract addresses.
const (
	// USDCBase is native USDC on Base mainnet.
	USDCBase = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"

	// USDCBaseSepolia is USDC on Base Sepolia.
	USDCBaseSepolia = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
)

// DefaultFacilitatorURL is the Coinbase CDP facilitator endpoint.
const DefaultFacilitatorURL = "https://x402-facilitator.cdp.coinbase.com"

// USDCDecimals is the number of decimal places for USDC (always 6).
const USDCDecimals = 6

// ChainConfig holds per-chain settlement defaults.
type ChainConfig struct {
	// Network is the CAIP-2 network identifier.
	Network string

	// USDCAddress is the official Circle USDC contract address.
	USDCAddress string

	// Decimals is the number of decimal places for USDC.
	Decimals uint8
}

// Predefined chain configurations.
var (
	// BaseMainnet is the configuration for Base mainnet.
	BaseMainnet = ChainConfig{
		Network:     NetworkBase,
		USDCAddress: USDCBase,
		Decimals:    USDCDecimals,
	}

	// BaseSepolia is the configuration for Base Sepolia testnet.
	BaseSepolia = ChainConfig{
		Network:     NetworkBaseSepolia,
		USDCAddress: USDCBaseSepolia,
		Decimals:    USDCDecimals,
	}
)

// chainRegistry maps CAIP-2 identifiers to their configurations.
var chainRegistry = map[string]ChainConfig{
	NetworkBase:        BaseMainnet,
	NetworkBaseSepolia: BaseSepolia,
}

// LookupChain returns the configuration for a CAIP-2 network identifier.
// The second return value reports whether the network is known.
func LookupChain(network string) (ChainConfig, bool) {
	cfg, ok := chainRegistry[network]
	return cfg, ok
}
