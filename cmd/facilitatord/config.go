package main

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultPort               = "4022"
	defaultSettlementCacheTTL = 5 * time.Minute
)

// evmNetworkEnv maps an RPC URL environment variable to the network it
// serves.
type evmNetworkEnv struct {
	envVar     string
	caip2      string
	legacyName string
}

var evmNetworkEnvs = []evmNetworkEnv{
	{envVar: "EVM_RPC_BASE", caip2: "eip155:8453", legacyName: "base"},
	{envVar: "EVM_RPC_BASE_SEPOLIA", caip2: "eip155:84532", legacyName: "base-sepolia"},
}

type svmNetworkEnv struct {
	envVar     string
	caip2      string
	legacyName string
}

var svmNetworkEnvs = []svmNetworkEnv{
	{envVar: "SVM_RPC_MAINNET", caip2: "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp", legacyName: "solana"},
	{envVar: "SVM_RPC_DEVNET", caip2: "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1", legacyName: "solana-devnet"},
	{envVar: "SVM_RPC_TESTNET", caip2: "solana:4uhcVJyU9pJkvQyS88uRDiswHXSCkY3z", legacyName: "solana-testnet"},
}

// evmNetwork is one configured EVM chain.
type evmNetwork struct {
	CAIP2      string
	LegacyName string
	RPCURL     string
}

// svmNetwork is one configured Solana cluster.
type svmNetwork struct {
	CAIP2      string
	LegacyName string
	RPCURL     string
}

type config struct {
	Port string

	EVMPrivateKey string
	EVMNetworks   []evmNetwork
	DeployWallets bool

	SVMPrivateKey string
	SVMNetworks   []svmNetwork

	SettlementCacheTTL time.Duration
	LogLevel           string
}

func loadConfig() (*config, error) {
	cfg := &config{
		Port:               getenvDefault("PORT", defaultPort),
		EVMPrivateKey:      os.Getenv("EVM_PRIVATE_KEY"),
		SVMPrivateKey:      os.Getenv("SVM_PRIVATE_KEY"),
		LogLevel:           getenvDefault("LOG_LEVEL", "info"),
		SettlementCacheTTL: defaultSettlementCacheTTL,
	}

	if v := os.Getenv("DEPLOY_SMART_WALLETS"); v != "" {
		deploy, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DEPLOY_SMART_WALLETS value %q", v)
		}
		cfg.DeployWallets = deploy
	}

	if v := os.Getenv("SETTLEMENT_CACHE_TTL_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds < 0 {
			return nil, fmt.Errorf("invalid SETTLEMENT_CACHE_TTL_SECONDS value %q", v)
		}
		cfg.SettlementCacheTTL = time.Duration(seconds) * time.Second
	}

	for _, net := range evmNetworkEnvs {
		if url := os.Getenv(net.envVar); url != "" {
			cfg.EVMNetworks = append(cfg.EVMNetworks, evmNetwork{
				CAIP2:      net.caip2,
				LegacyName: net.legacyName,
				RPCURL:     url,
			})
		}
	}
	for _, net := range svmNetworkEnvs {
		if url := os.Getenv(net.envVar); url != "" {
			cfg.SVMNetworks = append(cfg.SVMNetworks, svmNetwork{
				CAIP2:      net.caip2,
				LegacyName: net.legacyName,
				RPCURL:     url,
			})
		}
	}

	if cfg.EVMPrivateKey == "" && cfg.SVMPrivateKey == "" {
		return nil, fmt.Errorf("at least one of EVM_PRIVATE_KEY or SVM_PRIVATE_KEY is required")
	}
	if cfg.EVMPrivateKey != "" && len(cfg.EVMNetworks) == 0 {
		return nil, fmt.Errorf("EVM_PRIVATE_KEY is set but no EVM_RPC_* endpoint is configured")
	}
	if cfg.SVMPrivateKey != "" && len(cfg.SVMNetworks) == 0 {
		return nil, fmt.Errorf("SVM_PRIVATE_KEY is set but no SVM_RPC_* endpoint is configured")
	}

	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
