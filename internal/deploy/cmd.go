package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/spf13/cobra"

	"github.com/compose-network/singleton-deployer/configs"
	"github.com/compose-network/singleton-deployer/internal/deploy/artifacts"
	"github.com/compose-network/singleton-deployer/internal/deploy/balance"
	"github.com/compose-network/singleton-deployer/internal/deploy/chain"
	"github.com/compose-network/singleton-deployer/internal/deploy/deployerr"
	"github.com/compose-network/singleton-deployer/internal/deploy/domain"
	"github.com/compose-network/singleton-deployer/internal/deploy/gas"
	"github.com/compose-network/singleton-deployer/internal/deploy/orchestrator"
	"github.com/compose-network/singleton-deployer/internal/deploy/results"
	"github.com/compose-network/singleton-deployer/internal/deploy/retry"
)

var CMD = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the artifact catalogue through the singleton factory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configs.Values.Deployer
		slog.Info("starting deploy command. Validating config", slog.String("network", cfg.Network))

		if err := cfg.Validate(); err != nil {
			return err
		}

		summary, err := runBatch(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("deployment batch failed: %w", err)
		}

		slog.With("total", summary.Total).
			With("successful", summary.Successful).
			With("failed", summary.Failed).
			Info("deployment batch finished")

		if summary.Failed > 0 {
			return fmt.Errorf("%d of %d deployments failed", summary.Failed, summary.Total)
		}

		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check which artifacts are already deployed, without sending transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configs.Values.Deployer
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()

		client, err := chain.Dial(ctx, cfg.ResolveRPCURL())
		if err != nil {
			return deployerr.Wrap(deployerr.KindConfig, "failed to connect to RPC", err)
		}
		defer client.Close()

		store, err := newStore(cfg)
		if err != nil {
			return err
		}

		service := NewService(store, nil, nil)
		report, err := service.Verify(ctx, client)
		if err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}

		slog.With("deployed", report.Deployed).
			With("missing", report.Missing).
			With("mismatched", report.Mismatched).
			With("unverified", report.Unverified).
			With("rejected", report.Rejected).
			Info("verification finished")

		return nil
	},
}

func runBatch(ctx context.Context, cfg configs.Deployer) (domain.SessionSummary, error) {
	client, err := chain.Dial(ctx, cfg.ResolveRPCURL())
	if err != nil {
		return domain.SessionSummary{}, deployerr.Wrap(deployerr.KindConfig, "failed to connect to RPC", err)
	}
	defer client.Close()

	chainID, err := retry.Do(ctx, func(ctx context.Context) (*big.Int, error) {
		return client.ChainID(ctx)
	}, retry.DefaultOptions())
	if err != nil {
		return domain.SessionSummary{}, deployerr.Wrap(deployerr.KindConfig, "failed to read chain id", err)
	}

	signer, err := chain.NewSigner(cfg.PrivateKey, chainID)
	if err != nil {
		return domain.SessionSummary{}, err
	}

	slog.With("chain_id", chainID.String()).
		With("deployer", signer.Address().Hex()).
		Info("connected")

	balance.NewChecker(client).Check(ctx, signer.Address())

	store, err := newStore(cfg)
	if err != nil {
		return domain.SessionSummary{}, err
	}

	defaultGasPrice, err := cfg.DefaultGasPrice()
	if err != nil {
		return domain.SessionSummary{}, deployerr.Wrap(deployerr.KindConfig, "invalid gas configuration", err)
	}

	estimator := gas.NewEstimator(gas.Limits{
		WarningThreshold: cfg.Gas.WarningThreshold,
		MaxLimit:         cfg.Gas.MaxLimit,
		DefaultGasPrice:  defaultGasPrice,
	})

	sink := results.NewSink(cfg.ResultsDir)

	engine := orchestrator.New(client, signer, estimator, sink, orchestrator.Config{
		PacingDelay:      time.Duration(cfg.PacingDelayMS) * time.Millisecond,
		ReadBackAttempts: cfg.ReadBackRetries,
		ReadBackDelay:    time.Duration(cfg.ReadBackDelayMS) * time.Millisecond,
	})

	session := domain.NewSessionContext(cfg.SessionID, cfg.Network, chainID)
	slog.With("session_id", session.ID).Info("session created")

	return NewService(store, engine, sink).Run(ctx, session)
}

func newStore(cfg configs.Deployer) (*artifacts.Store, error) {
	ordering, err := artifacts.LoadOrdering(cfg.OrderingFile)
	if err != nil {
		return nil, deployerr.Wrap(deployerr.KindConfig, "invalid ordering file", err)
	}

	return artifacts.NewStore(cfg.ArtifactsDir, ordering), nil
}
