package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ChainIDBase        = big.NewInt(8453)
	ChainIDBaseSepolia = big.NewInt(84532)

	usdcBase = AssetInfo{
		Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Name:     "USD Coin",
		Version:  "2",
		Decimals: 6,
	}
	usdcBaseSepolia = AssetInfo{
		Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Name:     "USDC",
		Version:  "2",
		Decimals: 6,
	}

	// NetworkConfigs maps both CAIP-2 identifiers and legacy v1 bare names
	// to chain configuration.
	NetworkConfigs = map[string]NetworkConfig{
		"eip155:8453":  {ChainID: ChainIDBase, DefaultAsset: usdcBase},
		"base":         {ChainID: ChainIDBase, DefaultAsset: usdcBase},
		"eip155:84532": {ChainID: ChainIDBaseSepolia, DefaultAsset: usdcBaseSepolia},
		"base-sepolia": {ChainID: ChainIDBaseSepolia, DefaultAsset: usdcBaseSepolia},
	}
)

// GetNetworkConfig returns the configuration for a CAIP-2 or legacy
// network name. For CAIP-2 eip155 networks not in the table, the chain ID
// is derived from the reference so any EVM chain can be served.
func GetNetworkConfig(network string) (*NetworkConfig, error) {
	if config, ok := NetworkConfigs[network]; ok {
		return &config, nil
	}

	if ref, ok := strings.CutPrefix(network, "eip155:"); ok {
		chainID, ok := new(big.Int).SetString(ref, 10)
		if ok {
			return &NetworkConfig{ChainID: chainID}, nil
		}
	}

	return nil, fmt.Errorf("unknown evm network: %s", network)
}

// GetAssetInfo resolves asset metadata for a network. A known default
// asset keeps its curated name/version; any other address falls back to
// generic metadata that requirements.extra can override.
func GetAssetInfo(network string, asset string) (*AssetInfo, error) {
	if !IsValidAddress(asset) {
		return nil, fmt.Errorf("invalid asset address: %s", asset)
	}

	if config, err := GetNetworkConfig(network); err == nil && config.DefaultAsset.Address != "" {
		if strings.EqualFold(asset, config.DefaultAsset.Address) {
			info := config.DefaultAsset
			return &info, nil
		}
	}

	return &AssetInfo{
		Address:  common.HexToAddress(asset).Hex(),
		Name:     "Unknown Token",
		Version:  "1",
		Decimals: 18,
	}, nil
}

// IsValidAddress reports whether s is a well-formed hex address.
func IsValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

// HexToBytes decodes a hex string, with or without the 0x prefix.
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string")
	}
	b := common.Hex2Bytes(s)
	if len(b)*2 != len(s) {
		return nil, fmt.Errorf("invalid hex string")
	}
	return b, nil
}
