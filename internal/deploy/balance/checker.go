// Package balance reports the deployer account's funds before a batch runs.
package balance

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/singleton-deployer/internal/logger"
)

type (
	balanceReader interface {
		BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	}

	// Checker reads the deployer's ETH balance. An empty account is a
	// warning, not an abort: the operator may be funding it concurrently
	// and the first submission will fail with a clear error anyway.
	Checker struct {
		client balanceReader
		logger *slog.Logger
	}
)

// NewChecker creates a balance checker over the given client.
func NewChecker(client balanceReader) *Checker {
	return &Checker{
		client: client,
		logger: logger.Named("balance_checker"),
	}
}

// Check logs the deployer balance and warns when the account is unfunded.
func (c *Checker) Check(ctx context.Context, deployer common.Address) {
	funds, err := c.client.BalanceAt(ctx, deployer)
	if err != nil {
		c.logger.With("address", deployer.Hex()).With("err", err.Error()).
			Warn("failed to read deployer balance")
		return
	}

	if funds.Sign() == 0 {
		c.logger.With("address", deployer.Hex()).
			Warn("deployer account has zero balance, submissions will fail")
		return
	}

	c.logger.With("address", deployer.Hex()).
		With("balance", FormatETH(funds)).
		Info("deployer balance")
}

// FormatETH renders a wei amount as ETH for logs.
func FormatETH(wei *big.Int) string {
	eth := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		new(big.Float).SetInt(big.NewInt(1e18)),
	)

	return fmt.Sprintf("%.4f ETH (%s wei)", eth, wei.String())
}
