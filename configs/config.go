package configs

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
)

var Values Config

type (
	Config struct {
		Deployer Deployer `mapstructure:"deployer"`
	}

	Deployer struct {
		Network         string `mapstructure:"network"`
		RPCURL          string `mapstructure:"rpc-url"`
		PrivateKey      string `mapstructure:"private-key"`
		ArtifactsDir    string `mapstructure:"artifacts-dir"`
		ResultsDir      string `mapstructure:"results-dir"`
		OrderingFile    string `mapstructure:"ordering-file"`
		SessionID       string `mapstructure:"session-id"`
		PacingDelayMS   int    `mapstructure:"pacing-delay-ms"`
		ReadBackRetries int    `mapstructure:"read-back-retries"`
		ReadBackDelayMS int    `mapstructure:"read-back-delay-ms"`
		Gas             Gas    `mapstructure:"gas"`
	}

	Gas struct {
		WarningThreshold   uint64 `mapstructure:"warning-threshold"`
		MaxLimit           uint64 `mapstructure:"max-limit"`
		DefaultGasPriceWei string `mapstructure:"default-gas-price-wei"`
	}
)

const defaultRPCURL = "http://localhost:8545"

func (d *Deployer) Validate() error {
	var errs []error

	if d.Network == "" {
		errs = append(errs, errors.New("deployer.network is required (flag --network or env NETWORK)"))
	}
	if d.PrivateKey == "" {
		errs = append(errs, errors.New("deployer.private-key is required"))
	}
	if d.ArtifactsDir == "" {
		errs = append(errs, errors.New("deployer.artifacts-dir is required"))
	}
	if d.ResultsDir == "" {
		errs = append(errs, errors.New("deployer.results-dir is required"))
	}
	if d.Gas.MaxLimit == 0 {
		errs = append(errs, errors.New("deployer.gas.max-limit is required"))
	}
	if d.Gas.WarningThreshold > d.Gas.MaxLimit {
		errs = append(errs, errors.New("deployer.gas.warning-threshold must not exceed deployer.gas.max-limit"))
	}
	if _, err := d.DefaultGasPrice(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("deployer configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

// DefaultGasPrice parses the fallback gas price used when the chain's price
// lookup keeps failing.
func (d *Deployer) DefaultGasPrice() (*big.Int, error) {
	if d.Gas.DefaultGasPriceWei == "" {
		return big.NewInt(1_000_000_000), nil
	}

	price, ok := new(big.Int).SetString(d.Gas.DefaultGasPriceWei, 10)
	if !ok || price.Sign() < 0 {
		return nil, fmt.Errorf("deployer.gas.default-gas-price-wei is not a valid decimal: %q", d.Gas.DefaultGasPriceWei)
	}

	return price, nil
}

// ResolveRPCURL picks the RPC endpoint for a network. An explicit config
// value wins; otherwise the environment is consulted in order
// CUSTOM_RPC_URL, <NETWORK>_RPC_URL, RPC_URL, and finally a localhost
// default.
func (d *Deployer) ResolveRPCURL() string {
	if d.RPCURL != "" {
		return d.RPCURL
	}

	candidates := []string{
		"CUSTOM_RPC_URL",
		networkEnvKey(d.Network) + "_RPC_URL",
		"RPC_URL",
	}
	for _, key := range candidates {
		if url := os.Getenv(key); url != "" {
			return url
		}
	}

	return defaultRPCURL
}

// networkEnvKey converts a network label into the env var prefix, so
// "optimism-sepolia" reads OPTIMISM_SEPOLIA_RPC_URL.
func networkEnvKey(network string) string {
	key := strings.ToUpper(network)
	key = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, key)

	return key
}
