package svm

import "fmt"

const (
	SolanaMainnetCAIP2 = "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
	SolanaDevnetCAIP2  = "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"
	SolanaTestnetCAIP2 = "solana:4uhcVJyU9pJkvQyS88uRDiswHXSCkY3z"
)

var (
	usdcMainnet = AssetInfo{
		Address:  "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Symbol:   "USDC",
		Decimals: 6,
	}
	// Devnet and testnet share the same USDC mint.
	usdcDevnet = AssetInfo{
		Address:  "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
		Symbol:   "USDC",
		Decimals: 6,
	}

	// NetworkConfigs maps both CAIP-2 identifiers and legacy v1 bare names
	// to cluster configuration.
	NetworkConfigs = map[string]NetworkConfig{
		SolanaMainnetCAIP2: {Name: "solana", CAIP2: SolanaMainnetCAIP2, DefaultAsset: usdcMainnet},
		"solana":           {Name: "solana", CAIP2: SolanaMainnetCAIP2, DefaultAsset: usdcMainnet},
		SolanaDevnetCAIP2:  {Name: "solana-devnet", CAIP2: SolanaDevnetCAIP2, DefaultAsset: usdcDevnet},
		"solana-devnet":    {Name: "solana-devnet", CAIP2: SolanaDevnetCAIP2, DefaultAsset: usdcDevnet},
		SolanaTestnetCAIP2: {Name: "solana-testnet", CAIP2: SolanaTestnetCAIP2, DefaultAsset: usdcDevnet},
		"solana-testnet":   {Name: "solana-testnet", CAIP2: SolanaTestnetCAIP2, DefaultAsset: usdcDevnet},
	}
)

// GetNetworkConfig returns the configuration for a CAIP-2 or legacy
// network name.
func GetNetworkConfig(network string) (*NetworkConfig, error) {
	if config, ok := NetworkConfigs[network]; ok {
		return &config, nil
	}
	return nil, fmt.Errorf("unknown solana network: %s", network)
}

// IsValidNetwork reports whether the network names a known Solana cluster.
func IsValidNetwork(network string) bool {
	_, ok := NetworkConfigs[network]
	return ok
}
