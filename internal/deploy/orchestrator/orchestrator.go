// Package orchestrator drives a batch of deterministic deployments through
// the singleton factory: idempotency check, submission, confirmation,
// verification, and per-artifact result persistence.
package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/compose-network/singleton-deployer/internal/deploy/deployerr"
	"github.com/compose-network/singleton-deployer/internal/deploy/domain"
	"github.com/compose-network/singleton-deployer/internal/deploy/gas"
	"github.com/compose-network/singleton-deployer/internal/deploy/predict"
	"github.com/compose-network/singleton-deployer/internal/deploy/retry"
	"github.com/compose-network/singleton-deployer/internal/logger"
)

type (
	client interface {
		CodeAt(ctx context.Context, address common.Address) ([]byte, error)
		SuggestGasPrice(ctx context.Context) (*big.Int, error)
		EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
		PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
		SendTransaction(ctx context.Context, tx *types.Transaction) error
		WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	}

	signer interface {
		Address() common.Address
		SignTx(tx *types.Transaction) (*types.Transaction, error)
	}

	estimator interface {
		Estimate(ctx context.Context, estimateFn func(context.Context) (uint64, error), priceFn func(context.Context) (*big.Int, error)) (gas.Estimate, error)
	}

	sink interface {
		RecordArtifact(session domain.SessionContext, result domain.Result) error
	}

	// Config tunes the batch loop, not the individual RPC calls.
	Config struct {
		// PacingDelay is the pause after each successful artifact. It keeps
		// nonce ordering and RPC rate limits out of trouble; failed
		// artifacts sent nothing recent, so they skip the pause.
		PacingDelay time.Duration
		// ReadBackAttempts bounds the post-receipt code re-reads before the
		// success receipt is trusted over a possibly stale read replica.
		ReadBackAttempts int
		ReadBackDelay    time.Duration
	}

	// Orchestrator deploys artifacts strictly sequentially. The signer's
	// account owns the nonce sequence, so exactly one artifact is in flight
	// at a time.
	Orchestrator struct {
		client    client
		signer    signer
		estimator estimator
		sink      sink
		cfg       Config
		logger    *slog.Logger
	}
)

// New creates an orchestrator over the given chain client and signer.
func New(client client, signer signer, estimator estimator, sink sink, cfg Config) *Orchestrator {
	if cfg.ReadBackAttempts < 1 {
		cfg.ReadBackAttempts = 1
	}

	return &Orchestrator{
		client:    client,
		signer:    signer,
		estimator: estimator,
		sink:      sink,
		cfg:       cfg,
		logger:    logger.Named("deploy_orchestrator"),
	}
}

// DeployBatch processes artifacts in the given order and returns one result
// per attempted artifact, in the same order. A single artifact's failure
// never aborts the batch; only ctx cancellation between artifacts cuts the
// run short, and then the already-produced results are still returned.
func (o *Orchestrator) DeployBatch(ctx context.Context, session domain.SessionContext, artifacts []domain.Artifact) ([]domain.Result, error) {
	results := make([]domain.Result, 0, len(artifacts))

	for i, artifact := range artifacts {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("batch interrupted before artifact %q: %w", artifact.Name, err)
		}

		result := o.deployArtifact(ctx, artifact)
		results = append(results, result)

		if err := o.sink.RecordArtifact(session, result); err != nil {
			o.logger.With("artifact", artifact.Name).With("err", err.Error()).Error("failed to persist result")
		}

		if result.Success && i < len(artifacts)-1 && o.cfg.PacingDelay > 0 {
			o.logger.With("delay", o.cfg.PacingDelay.String()).Debug("pacing before next artifact")
			select {
			case <-ctx.Done():
			case <-time.After(o.cfg.PacingDelay):
			}
		}
	}

	return results, nil
}

// deployArtifact runs one artifact through the full state machine. Every
// error is converted into a failure result at this boundary.
func (o *Orchestrator) deployArtifact(ctx context.Context, artifact domain.Artifact) domain.Result {
	log := o.logger.With("artifact", artifact.Name)

	if err := artifact.Validate(); err != nil {
		return failure(artifact.Name, deployerr.Wrap(deployerr.KindValidation, "invalid artifact", err))
	}

	if artifact.ExpectedAddress != nil {
		if deployed := o.checkExisting(ctx, artifact, log); deployed != nil {
			return *deployed
		}
	}

	log.Info("submitting deployment transaction")
	signedTx, err := o.submit(ctx, artifact)
	if err != nil {
		return failure(artifact.Name, err)
	}

	txHash := signedTx.Hash()
	log = log.With("tx_hash", txHash.Hex())
	log.Info("transaction sent, waiting for receipt")

	receipt, err := o.client.WaitForReceipt(ctx, txHash)
	if err != nil {
		result := failure(artifact.Name, deployerr.Wrap(deployerr.KindNetwork, "failed to confirm transaction", err))
		result.TransactionHash = &txHash
		return result
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		log.With("block_number", receipt.BlockNumber.String()).Error("deployment transaction reverted")
		return domain.Result{
			Name:            artifact.Name,
			Success:         false,
			TransactionHash: &txHash,
			BlockNumber:     receipt.BlockNumber,
			GasUsed:         receipt.GasUsed,
			Error:           "Transaction failed",
		}
	}

	result := domain.Result{
		Name:            artifact.Name,
		Success:         true,
		TransactionHash: &txHash,
		BlockNumber:     receipt.BlockNumber,
		GasUsed:         receipt.GasUsed,
	}
	result.ResolvedAddress = o.resolveAddress(ctx, artifact, receipt, log)

	if result.ResolvedAddress != nil {
		log.With("address", result.ResolvedAddress.Hex()).Info("artifact deployed")
	} else {
		log.Info("artifact deployed, no resolvable address")
	}

	return result
}

// checkExisting reads the code at the expected address. Non-empty code means
// the artifact is already deployed and no transaction is sent. A failing
// read is logged and treated as "proceed": the chain is the source of truth
// and a flaky read must not block an otherwise valid deployment.
func (o *Orchestrator) checkExisting(ctx context.Context, artifact domain.Artifact, log *slog.Logger) *domain.Result {
	expected := *artifact.ExpectedAddress

	code, err := retry.Do(ctx, func(ctx context.Context) ([]byte, error) {
		return o.client.CodeAt(ctx, expected)
	}, retry.DefaultOptions())
	if err != nil {
		log.With("address", expected.Hex()).With("err", err.Error()).
			Warn("existence check failed, proceeding with deployment")
		return nil
	}
	if len(code) == 0 {
		return nil
	}

	log.With("address", expected.Hex()).Info("already deployed, skipping")

	if artifact.ExpectedCodeHash != nil {
		onChainHash := predict.CodeHash(code)
		if onChainHash != *artifact.ExpectedCodeHash {
			log.With("expected_code_hash", artifact.ExpectedCodeHash.Hex()).
				With("on_chain_code_hash", onChainHash.Hex()).
				Warn("deployed bytecode hash differs from expected")
		}
	}

	return &domain.Result{
		Name:            artifact.Name,
		Success:         true,
		ResolvedAddress: &expected,
	}
}

// submit estimates gas, builds the factory call, signs it and sends it. The
// signed transaction is returned so the hash is known even if confirmation
// later fails.
func (o *Orchestrator) submit(ctx context.Context, artifact domain.Artifact) (*types.Transaction, error) {
	from := o.signer.Address()
	to := artifact.FactoryAddress

	estimate, err := o.estimator.Estimate(ctx,
		func(ctx context.Context) (uint64, error) {
			return o.client.EstimateGas(ctx, ethereum.CallMsg{
				From: from,
				To:   &to,
				Data: artifact.InitCode,
			})
		},
		func(ctx context.Context) (*big.Int, error) {
			return o.client.SuggestGasPrice(ctx)
		},
	)
	if err != nil {
		return nil, err
	}

	nonce, err := retry.Do(ctx, func(ctx context.Context) (uint64, error) {
		return o.client.PendingNonceAt(ctx, from)
	}, retry.DefaultOptions())
	if err != nil {
		return nil, deployerr.Wrap(deployerr.KindNetwork, "failed to fetch nonce", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      estimate.Gas,
		GasPrice: estimate.GasPrice,
		Data:     artifact.InitCode,
	})

	signedTx, err := o.signer.SignTx(tx)
	if err != nil {
		return nil, err
	}

	if err := o.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, deployerr.Wrap(deployerr.KindNetwork, "failed to send transaction", err)
	}

	return signedTx, nil
}

// resolveAddress determines where the deployment landed. The factory performs
// the creation, so the receipt usually carries no contract address and the
// expected address is verified by reading the code back. Reads go through a
// bounded re-read loop before the success receipt is trusted over a possibly
// stale replica.
func (o *Orchestrator) resolveAddress(ctx context.Context, artifact domain.Artifact, receipt *types.Receipt, log *slog.Logger) *common.Address {
	if artifact.ExpectedAddress == nil {
		if receipt.ContractAddress != (common.Address{}) {
			address := receipt.ContractAddress
			return &address
		}
		return nil
	}

	expected := *artifact.ExpectedAddress

	if receipt.ContractAddress != (common.Address{}) && receipt.ContractAddress != expected {
		log.With("receipt_address", receipt.ContractAddress.Hex()).
			With("expected_address", expected.Hex()).
			Warn("receipt contract address disagrees with expected address")
	}

	var code []byte
	for attempt := 0; attempt < o.cfg.ReadBackAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return &expected
			case <-time.After(o.cfg.ReadBackDelay):
			}
		}

		read, err := o.client.CodeAt(ctx, expected)
		if err != nil {
			log.With("err", err.Error()).Debug("post-deployment code read failed")
			continue
		}
		if len(read) > 0 {
			code = read
			break
		}
	}

	if len(code) == 0 {
		log.With("address", expected.Hex()).
			Warn("transaction succeeded but no code observed at expected address, trusting receipt")
	} else if artifact.ExpectedCodeHash != nil && !bytes.Equal(predict.CodeHash(code).Bytes(), artifact.ExpectedCodeHash.Bytes()) {
		log.With("expected_code_hash", artifact.ExpectedCodeHash.Hex()).
			Warn("deployed bytecode hash differs from expected")
	}

	return &expected
}

// failure converts an error into a final result for the artifact.
func failure(name string, err error) domain.Result {
	return domain.Result{
		Name:    name,
		Success: false,
		Error:   err.Error(),
	}
}
