// Package artifacts loads deployment artifacts from a directory tree and
// fixes their deployment order.
package artifacts

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/singleton-deployer/internal/deploy/deployerr"
	"github.com/compose-network/singleton-deployer/internal/deploy/domain"
	jsonfs "github.com/compose-network/singleton-deployer/internal/deploy/infra/filesystem/json"
	"github.com/compose-network/singleton-deployer/internal/deploy/predict"
	"github.com/compose-network/singleton-deployer/internal/logger"
)

type (
	// Rejection is an artifact that failed load-time validation. Rejection is
	// scoped to the one artifact; the rest of the catalogue still loads.
	Rejection struct {
		Name string
		Err  error
	}

	// artifactFile is the on-disk form of one artifact.
	artifactFile struct {
		To              string `json:"to"`
		Data            string `json:"data"`
		ExpectedAddress string `json:"expectedAddress,omitempty"`
		CodeHash        string `json:"codeHash,omitempty"`
		Salt            string `json:"salt,omitempty"`
	}

	// Store loads artifacts from a directory tree. The artifact name is the
	// file's path relative to the root, without the .json extension.
	Store struct {
		rootDir  string
		ordering Ordering
		reader   *jsonfs.Reader
		logger   *slog.Logger
	}
)

// NewStore creates an artifact store rooted at rootDir.
func NewStore(rootDir string, ordering Ordering) *Store {
	return &Store{
		rootDir:  rootDir,
		ordering: ordering,
		reader:   jsonfs.NewReader(),
		logger:   logger.Named("artifact_store"),
	}
}

// Load reads every *.json artifact under the root, validates it, and returns
// the batch in deployment order. A malformed artifact is rejected on its own;
// the valid remainder of the catalogue still deploys. Only an unreadable
// artifacts directory fails the whole load.
func (s *Store) Load() ([]domain.Artifact, []Rejection, error) {
	var paths []string
	err := filepath.WalkDir(s.rootDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, nil, deployerr.Wrap(deployerr.KindConfig, fmt.Sprintf("failed to read artifacts directory %s", s.rootDir), err)
	}

	artifacts := make([]domain.Artifact, 0, len(paths))
	var rejections []Rejection
	for _, path := range paths {
		name := s.artifactName(path)
		artifact, err := s.loadOne(path, name)
		if err != nil {
			s.logger.With("artifact", name).With("err", err.Error()).Warn("artifact rejected")
			rejections = append(rejections, Rejection{Name: name, Err: err})
			continue
		}
		artifacts = append(artifacts, artifact)
	}

	s.ordering.Sort(artifacts)

	s.logger.With("count", len(artifacts)).
		With("rejected", len(rejections)).
		With("dir", s.rootDir).
		Info("artifacts loaded")

	return artifacts, rejections, nil
}

// artifactName is the file's path relative to the root without the .json
// extension, in slash form.
func (s *Store) artifactName(path string) string {
	name, err := filepath.Rel(s.rootDir, path)
	if err != nil {
		name = filepath.Base(path)
	}
	return strings.TrimSuffix(filepath.ToSlash(name), ".json")
}

func (s *Store) loadOne(path, name string) (domain.Artifact, error) {
	var file artifactFile
	if err := s.reader.ReadJSON(path, &file); err != nil {
		return domain.Artifact{}, deployerr.Wrap(deployerr.KindValidation, fmt.Sprintf("failed to read artifact %q", name), err)
	}

	if file.To == "" {
		return domain.Artifact{}, deployerr.New(deployerr.KindValidation, fmt.Sprintf("artifact %q is missing required field 'to'", name))
	}
	if file.Data == "" {
		return domain.Artifact{}, deployerr.New(deployerr.KindValidation, fmt.Sprintf("artifact %q is missing required field 'data'", name))
	}
	if !common.IsHexAddress(file.To) {
		return domain.Artifact{}, deployerr.New(deployerr.KindValidation, fmt.Sprintf("artifact %q has malformed factory address %q", name, file.To))
	}

	initCode, err := hex.DecodeString(strings.TrimPrefix(file.Data, "0x"))
	if err != nil {
		return domain.Artifact{}, deployerr.Wrap(deployerr.KindValidation, fmt.Sprintf("artifact %q has malformed calldata", name), err)
	}

	artifact := domain.Artifact{
		Name:           name,
		FactoryAddress: common.HexToAddress(file.To),
		InitCode:       initCode,
	}

	if file.ExpectedAddress != "" {
		if !common.IsHexAddress(file.ExpectedAddress) {
			return domain.Artifact{}, deployerr.New(deployerr.KindValidation, fmt.Sprintf("artifact %q has malformed expected address %q", name, file.ExpectedAddress))
		}
		address := common.HexToAddress(file.ExpectedAddress)
		artifact.ExpectedAddress = &address
	} else if file.Salt != "" {
		// Bare CREATE2 proxy convention: the calldata is the creation code
		// and the factory prepends the salt.
		salt, err := parseSalt(file.Salt)
		if err != nil {
			return domain.Artifact{}, deployerr.Wrap(deployerr.KindValidation, fmt.Sprintf("artifact %q has malformed salt", name), err)
		}
		address := predict.Address(artifact.FactoryAddress, salt, initCode)
		artifact.ExpectedAddress = &address
		s.logger.With("artifact", name).With("address", address.Hex()).Debug("predicted deterministic address from salt")
	}

	if file.CodeHash != "" {
		codeHash := common.HexToHash(file.CodeHash)
		artifact.ExpectedCodeHash = &codeHash
	}

	if err := artifact.Validate(); err != nil {
		return domain.Artifact{}, deployerr.Wrap(deployerr.KindValidation, "artifact rejected", err)
	}

	return artifact, nil
}

func parseSalt(value string) ([32]byte, error) {
	var salt [32]byte

	raw, err := hex.DecodeString(strings.TrimPrefix(value, "0x"))
	if err != nil {
		return salt, err
	}
	if len(raw) > 32 {
		return salt, fmt.Errorf("salt is %d bytes, expected at most 32", len(raw))
	}

	copy(salt[32-len(raw):], raw)
	return salt, nil
}
