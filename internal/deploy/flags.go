package deploy

import (
	"github.com/spf13/viper"
)

// flagDef defines a command-line flag with its configuration.
type (
	flagType interface {
		string | int | bool
	}

	flagDef[T flagType] struct {
		name         string
		viperKey     string
		defaultValue T
		description  string
	}
)

var (
	stringFlags = []flagDef[string]{
		{"network", "deployer.network", "", "Target network label (or env NETWORK)"},
		{"rpc-url", "deployer.rpc-url", "", "RPC endpoint; overrides the environment-based resolution"},
		{"private-key", "deployer.private-key", "", "Deployer account private key (hex)"},
		{"artifacts-dir", "deployer.artifacts-dir", "artifacts", "Directory tree holding the deployment artifacts"},
		{"results-dir", "deployer.results-dir", "deployments", "Directory receiving result and session records"},
		{"ordering-file", "deployer.ordering-file", "deploy-order.yaml", "YAML ordering table for artifact names"},
		{"session-id", "deployer.session-id", "", "Session id to resume; generated when empty"},
		{"gas-default-price-wei", "deployer.gas.default-gas-price-wei", "1000000000", "Fallback gas price when the price lookup fails"},
	}

	intFlags = []flagDef[int]{
		{"pacing-delay-ms", "deployer.pacing-delay-ms", 2000, "Pause after each successful deployment"},
		{"read-back-retries", "deployer.read-back-retries", 3, "Code re-reads after a success receipt before trusting it"},
		{"read-back-delay-ms", "deployer.read-back-delay-ms", 2000, "Delay between post-receipt code re-reads"},
		{"gas-warning-threshold", "deployer.gas.warning-threshold", 5_000_000, "Gas amount above which an estimate is flagged high"},
		{"gas-max-limit", "deployer.gas.max-limit", 10_000_000, "Gas amount above which an estimate is flagged critical"},
	}

	boolFlags = []flagDef[bool]{}
)

func init() {
	if err := declareFlags(stringFlags); err != nil {
		panic(err)
	}
	if err := declareFlags(intFlags); err != nil {
		panic(err)
	}
	if err := declareFlags(boolFlags); err != nil {
		panic(err)
	}
	CMD.AddCommand(verifyCmd)
}

// declareFlags declares multiple flags and binds them to viper configuration keys.
func declareFlags[T flagType](flags []flagDef[T]) error {
	for _, flag := range flags {
		if err := declareFlag(flag.name, flag.viperKey, flag.defaultValue, flag.description); err != nil {
			return err
		}
	}
	return nil
}

// declareFlag declares a single persistent flag and binds it to a viper
// configuration key. The type parameter T determines the flag type.
func declareFlag[T flagType](flagName, viperKey string, defaultValue T, description string) error {
	var zero T
	switch any(zero).(type) {
	case string:
		CMD.PersistentFlags().String(flagName, any(defaultValue).(string), description)
	case int:
		CMD.PersistentFlags().Int(flagName, any(defaultValue).(int), description)
	case bool:
		CMD.PersistentFlags().Bool(flagName, any(defaultValue).(bool), description)
	}
	return viper.BindPFlag(viperKey, CMD.PersistentFlags().Lookup(flagName))
}
