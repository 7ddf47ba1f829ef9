// Package results persists deployment outcomes as durable JSON records: one
// file per artifact, a session-scoped append-only aggregate, and per-batch
// summaries.
package results

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/compose-network/singleton-deployer/internal/deploy/domain"
	jsonfs "github.com/compose-network/singleton-deployer/internal/deploy/infra/filesystem/json"
	"github.com/compose-network/singleton-deployer/internal/logger"
)

type (
	// sessionRecord is the on-disk aggregate for one session id. Records are
	// only ever appended; resuming a session across process restarts keeps
	// the earlier entries.
	sessionRecord struct {
		SessionID string          `json:"sessionId"`
		Network   string          `json:"network"`
		Results   []domain.Result `json:"results"`
	}

	// Sink writes results under a root directory, grouped by network.
	Sink struct {
		rootDir string
		reader  *jsonfs.Reader
		writer  *jsonfs.Writer
		now     func() time.Time
		logger  *slog.Logger
	}
)

// NewSink creates a file-backed result sink rooted at rootDir.
func NewSink(rootDir string) *Sink {
	return &Sink{
		rootDir: rootDir,
		reader:  jsonfs.NewReader(),
		writer:  jsonfs.NewWriter(),
		now:     time.Now,
		logger:  logger.Named("result_sink"),
	}
}

// RecordArtifact writes one uniquely named record for the result and appends
// it to the session aggregate. Prior records for the same artifact name are
// never overwritten.
func (s *Sink) RecordArtifact(session domain.SessionContext, result domain.Result) error {
	dir := filepath.Join(s.rootDir, session.Network)

	recordName := fmt.Sprintf("%s-%d.json", sanitize(result.Name), s.now().UnixNano())
	if err := s.writer.WriteJSON(filepath.Join(dir, recordName), result); err != nil {
		return fmt.Errorf("failed to record result for %q: %w", result.Name, err)
	}

	if err := s.appendToSession(session, result); err != nil {
		return err
	}

	s.logger.With("artifact", result.Name).
		With("success", result.Success).
		With("record", recordName).
		Debug("result recorded")

	return nil
}

// appendToSession is a strict append: the existing aggregate is reloaded and
// the new result added, so a resumed session id keeps its history.
func (s *Sink) appendToSession(session domain.SessionContext, result domain.Result) error {
	path := filepath.Join(s.rootDir, session.Network, fmt.Sprintf("session-%s.json", sanitize(session.ID)))

	record := sessionRecord{
		SessionID: session.ID,
		Network:   session.Network,
	}
	if s.reader.Exists(path) {
		if err := s.reader.ReadJSON(path, &record); err != nil {
			return fmt.Errorf("failed to reload session record %s: %w", path, err)
		}
	}

	record.Results = append(record.Results, result)

	if err := s.writer.WriteJSON(path, record); err != nil {
		return fmt.Errorf("failed to append to session record %s: %w", path, err)
	}

	return nil
}

// RecordSession writes the finalized batch summary twice: a copy keyed by
// timestamp and session id that is never touched again, and a per-network
// "latest" pointer that is the single intentionally overwritten record in
// the data model. The session id in the name keeps summaries of sessions
// finishing within the same second apart.
func (s *Sink) RecordSession(session domain.SessionContext, results []domain.Result) (domain.SessionSummary, error) {
	summary := session.Summarize(results)

	dir := filepath.Join(s.rootDir, session.Network)
	timestamped := filepath.Join(dir, fmt.Sprintf("deployment-%s-%s-%s.json", session.Network, s.now().UTC().Format("20060102-150405"), sanitize(session.ID)))
	if err := s.writer.WriteJSON(timestamped, summary); err != nil {
		return summary, fmt.Errorf("failed to write session summary: %w", err)
	}

	latest := filepath.Join(dir, fmt.Sprintf("deployment-%s-latest.json", session.Network))
	if err := s.writer.WriteJSON(latest, summary); err != nil {
		return summary, fmt.Errorf("failed to write latest session summary: %w", err)
	}

	s.logger.With("total", summary.Total).
		With("successful", summary.Successful).
		With("failed", summary.Failed).
		Info("session summary recorded")

	return summary, nil
}

// sanitize keeps artifact-derived file names inside the sink directory.
func sanitize(name string) string {
	out := []rune(name)
	for i, r := range out {
		switch r {
		case '/', '\\', ':':
			out[i] = '_'
		}
	}
	return string(out)
}
