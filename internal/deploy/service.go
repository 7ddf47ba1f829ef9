package deploy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/singleton-deployer/internal/deploy/artifacts"
	"github.com/compose-network/singleton-deployer/internal/deploy/domain"
	"github.com/compose-network/singleton-deployer/internal/deploy/predict"
	"github.com/compose-network/singleton-deployer/internal/logger"
)

// Service runs one deployment batch end to end: load the catalogue, deploy
// it, finalize the session summary.
type (
	artifactStore interface {
		Load() ([]domain.Artifact, []artifacts.Rejection, error)
	}
	batchOrchestrator interface {
		DeployBatch(ctx context.Context, session domain.SessionContext, artifacts []domain.Artifact) ([]domain.Result, error)
	}
	resultSink interface {
		RecordArtifact(session domain.SessionContext, result domain.Result) error
		RecordSession(session domain.SessionContext, results []domain.Result) (domain.SessionSummary, error)
	}
	codeReader interface {
		CodeAt(ctx context.Context, address common.Address) ([]byte, error)
	}

	Service struct {
		store        artifactStore
		orchestrator batchOrchestrator
		sink         resultSink
		logger       *slog.Logger
	}
)

// NewService creates a deployment service.
func NewService(store artifactStore, orchestrator batchOrchestrator, sink resultSink) *Service {
	return &Service{
		store:        store,
		orchestrator: orchestrator,
		sink:         sink,
		logger:       logger.Named("deploy_service"),
	}
}

// Run executes the batch and returns the finalized summary. An artifact
// rejected at load time becomes a failed result; the valid remainder still
// deploys. The summary is recorded even when the batch was cut short, so the
// attempted artifacts keep their durable results.
func (s *Service) Run(ctx context.Context, session domain.SessionContext) (domain.SessionSummary, error) {
	catalogue, rejections, err := s.store.Load()
	if err != nil {
		return domain.SessionSummary{}, fmt.Errorf("failed to load artifacts: %w", err)
	}
	if len(catalogue) == 0 && len(rejections) == 0 {
		s.logger.Warn("no artifacts found, nothing to deploy")
	}

	results := make([]domain.Result, 0, len(rejections)+len(catalogue))
	for _, rejection := range rejections {
		result := domain.Result{Name: rejection.Name, Error: rejection.Err.Error()}
		if err := s.sink.RecordArtifact(session, result); err != nil {
			s.logger.With("artifact", rejection.Name).With("err", err.Error()).Warn("failed to record rejected artifact")
		}
		results = append(results, result)
	}

	batchResults, batchErr := s.orchestrator.DeployBatch(ctx, session, catalogue)
	results = append(results, batchResults...)

	summary, err := s.sink.RecordSession(session, results)
	if err != nil {
		return summary, fmt.Errorf("failed to record session summary: %w", err)
	}

	if batchErr != nil {
		return summary, batchErr
	}

	return summary, nil
}

// VerificationReport summarizes a read-only pass over the catalogue.
type VerificationReport struct {
	Deployed   int
	Missing    int
	Mismatched int
	Unverified int
	Rejected   int
}

// Verify checks each artifact's expected address without sending any
// transaction: deployed, missing, or deployed with a diverging code hash.
// Artifacts without an expected address cannot be verified and are counted
// separately, as are artifacts rejected at load time.
func (s *Service) Verify(ctx context.Context, client codeReader) (VerificationReport, error) {
	catalogue, rejections, err := s.store.Load()
	if err != nil {
		return VerificationReport{}, fmt.Errorf("failed to load artifacts: %w", err)
	}

	var report VerificationReport
	for _, rejection := range rejections {
		report.Rejected++
		s.logger.With("artifact", rejection.Name).With("err", rejection.Err.Error()).Warn("artifact rejected, cannot verify")
	}

	for _, artifact := range catalogue {
		log := s.logger.With("artifact", artifact.Name)

		if artifact.ExpectedAddress == nil {
			report.Unverified++
			log.Info("no expected address, cannot verify")
			continue
		}

		code, err := client.CodeAt(ctx, *artifact.ExpectedAddress)
		if err != nil {
			return report, fmt.Errorf("failed to read code for %q: %w", artifact.Name, err)
		}

		address := artifact.ExpectedAddress.Hex()
		switch {
		case len(code) == 0:
			report.Missing++
			log.With("address", address).Warn("not deployed")
		case artifact.ExpectedCodeHash != nil && predict.CodeHash(code) != *artifact.ExpectedCodeHash:
			report.Mismatched++
			log.With("address", address).
				With("on_chain_code_hash", predict.CodeHash(code).Hex()).
				Warn("deployed with unexpected bytecode")
		default:
			report.Deployed++
			log.With("address", address).Info("deployed")
		}
	}

	return report, nil
}
