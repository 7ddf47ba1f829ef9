// Package chain is the RPC boundary of the deployment engine. The rest of
// the engine consumes the Client interface; the ethclient-backed
// implementation lives here.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/compose-network/singleton-deployer/internal/logger"
)

type (
	// Client is the capability set the orchestrator needs from the chain.
	Client interface {
		CodeAt(ctx context.Context, address common.Address) ([]byte, error)
		ChainID(ctx context.Context) (*big.Int, error)
		SuggestGasPrice(ctx context.Context) (*big.Int, error)
		EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
		PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
		BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
		SendTransaction(ctx context.Context, tx *types.Transaction) error
		WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
		Close()
	}

	// EthClient implements Client over a go-ethereum RPC connection.
	EthClient struct {
		client       *ethclient.Client
		pollInterval time.Duration
		logger       *slog.Logger
	}
)

// Dial connects to an RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*EthClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", rpcURL, err)
	}

	return &EthClient{
		client:       client,
		pollInterval: 2 * time.Second,
		logger:       logger.Named("chain_client"),
	}, nil
}

func (c *EthClient) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	return c.client.CodeAt(ctx, address, nil)
}

func (c *EthClient) ChainID(ctx context.Context) (*big.Int, error) {
	return c.client.ChainID(ctx)
}

func (c *EthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.client.SuggestGasPrice(ctx)
}

func (c *EthClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return c.client.EstimateGas(ctx, msg)
}

func (c *EthClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.client.PendingNonceAt(ctx, account)
}

func (c *EthClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.client.BalanceAt(ctx, account, nil)
}

func (c *EthClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.client.SendTransaction(ctx, tx)
}

// Bounds on the receipt wait. A pending transaction is polled for up to
// receiptMaxPolls intervals; a transport that keeps failing is abandoned
// after receiptMaxConsecutiveErrs errors in a row, so a dead RPC endpoint
// turns into a per-artifact failure instead of a hung batch.
const (
	receiptMaxPolls           = 150
	receiptMaxConsecutiveErrs = 5
)

// receiptFetcher is the single RPC call the receipt wait depends on.
type receiptFetcher func(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

// WaitForReceipt polls until the transaction is mined, the poll budget runs
// out, the transport fails persistently, or ctx expires.
func (c *EthClient) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return waitForReceipt(ctx, txHash, c.pollInterval, c.client.TransactionReceipt, c.logger)
}

func waitForReceipt(ctx context.Context, txHash common.Hash, interval time.Duration, fetch receiptFetcher, log *slog.Logger) (*types.Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		consecutiveErrs int
		lastErr         error
	)
	for poll := 0; poll < receiptMaxPolls; poll++ {
		receipt, err := fetch(ctx, txHash)
		switch {
		case err == nil:
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
			consecutiveErrs = 0
			log.With("tx_hash", txHash.Hex()).Debug("receipt not available yet")
		default:
			consecutiveErrs++
			lastErr = err
			log.With("tx_hash", txHash.Hex()).With("err", err.Error()).Warn("failed to fetch transaction receipt")
			if consecutiveErrs >= receiptMaxConsecutiveErrs {
				return nil, fmt.Errorf("failed to fetch receipt for %s after %d consecutive errors: %w", txHash.Hex(), consecutiveErrs, lastErr)
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to wait for receipt of %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}

	return nil, fmt.Errorf("transaction %s was not mined within %d polls", txHash.Hex(), receiptMaxPolls)
}

func (c *EthClient) Close() {
	c.client.Close()
}
