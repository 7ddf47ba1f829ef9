// Package gas obtains gas estimates and prices with retries and graceful
// price fallback. An unknown gas amount cannot be defaulted safely, so only
// the price lookup degrades silently.
package gas

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/compose-network/singleton-deployer/internal/deploy/deployerr"
	"github.com/compose-network/singleton-deployer/internal/deploy/retry"
	"github.com/compose-network/singleton-deployer/internal/logger"
)

// Warning levels attached to estimates that approach or exceed the block
// budget the operator configured.
const (
	WarningHigh     = "high"
	WarningCritical = "critical"
)

type (
	// Limits configures the warning thresholds and the fallback price used
	// when the price lookup keeps failing.
	Limits struct {
		WarningThreshold uint64
		MaxLimit         uint64
		DefaultGasPrice  *big.Int
	}

	// Estimate is the outcome of one estimation round.
	Estimate struct {
		Gas           uint64
		GasPrice      *big.Int
		EstimatedCost *big.Int
		Warning       string
	}

	// Estimator wraps estimate and price lookups in the retrying caller.
	Estimator struct {
		limits Limits
		logger *slog.Logger
	}
)

// NewEstimator creates a gas estimator with the given limits. A missing
// fallback price defaults to 1 gwei so the price-degradation path always has
// a value to fall back to.
func NewEstimator(limits Limits) *Estimator {
	if limits.DefaultGasPrice == nil {
		limits.DefaultGasPrice = big.NewInt(1_000_000_000)
	}

	return &Estimator{
		limits: limits,
		logger: logger.Named("gas_estimator"),
	}
}

// Estimate runs estimateFn and priceFn, each with up to three attempts and a
// one second initial delay. A price lookup that fails after retries falls
// back to the configured default price. A failed estimate is fatal for this
// call and surfaces as a gas-estimation error.
func (e *Estimator) Estimate(
	ctx context.Context,
	estimateFn func(context.Context) (uint64, error),
	priceFn func(context.Context) (*big.Int, error),
) (Estimate, error) {
	opts := retry.Options{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}

	gasAmount, err := retry.Do(ctx, estimateFn, opts)
	if err != nil {
		return Estimate{}, deployerr.Wrap(deployerr.KindGasEstimation, "gas estimation failed", err)
	}

	gasPrice, err := retry.Do(ctx, priceFn, opts)
	if err != nil {
		e.logger.With("err", err.Error()).
			With("default_gas_price", e.limits.DefaultGasPrice.String()).
			Warn("gas price lookup failed, falling back to default")
		gasPrice = new(big.Int).Set(e.limits.DefaultGasPrice)
	}

	estimate := Estimate{
		Gas:           gasAmount,
		GasPrice:      gasPrice,
		EstimatedCost: new(big.Int).Mul(new(big.Int).SetUint64(gasAmount), gasPrice),
		Warning:       e.warningFor(gasAmount),
	}

	if estimate.Warning != "" {
		e.logger.With("gas", gasAmount).
			With("warning", estimate.Warning).
			Warn("gas estimate exceeds configured threshold")
	}

	return estimate, nil
}

func (e *Estimator) warningFor(gasAmount uint64) string {
	switch {
	case gasAmount > e.limits.MaxLimit:
		return WarningCritical
	case gasAmount > e.limits.WarningThreshold:
		return WarningHigh
	default:
		return ""
	}
}
