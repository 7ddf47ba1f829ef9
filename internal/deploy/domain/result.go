package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type (
	// Result is the final outcome for one artifact. It is created once and
	// never mutated; a retried deployment produces a new Result for the
	// same name.
	Result struct {
		Name            string
		Success         bool
		TransactionHash *common.Hash
		ResolvedAddress *common.Address
		BlockNumber     *big.Int
		GasUsed         uint64
		Error           string
	}

	// SessionContext identifies one batch invocation. It is created by the
	// caller and threaded through the orchestrator and the result sink, so
	// session scoping carries no hidden process-global state.
	SessionContext struct {
		ID        string
		Network   string
		ChainID   *big.Int
		StartedAt time.Time
	}

	// SessionSummary aggregates the results of one batch.
	SessionSummary struct {
		SessionID  string
		Network    string
		ChainID    *big.Int
		Total      int
		Successful int
		Failed     int
		Results    []Result
		FinishedAt time.Time
	}
)

// NewSessionContext creates a session for one batch run. An empty id is
// replaced with a generated one.
func NewSessionContext(id, network string, chainID *big.Int) SessionContext {
	if id == "" {
		id = uuid.NewString()
	}

	return SessionContext{
		ID:        id,
		Network:   network,
		ChainID:   chainID,
		StartedAt: time.Now().UTC(),
	}
}

// Summarize folds a batch's results into a SessionSummary.
func (s SessionContext) Summarize(results []Result) SessionSummary {
	summary := SessionSummary{
		SessionID:  s.ID,
		Network:    s.Network,
		ChainID:    s.ChainID,
		Total:      len(results),
		Results:    results,
		FinishedAt: time.Now().UTC(),
	}

	for _, result := range results {
		if result.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}

	return summary
}

// resultJSON is the wire form of Result. Large integers are serialized as
// decimal strings so 256-bit values survive parsers that only have float64.
type resultJSON struct {
	Name            string `json:"name"`
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash,omitempty"`
	ResolvedAddress string `json:"resolvedAddress,omitempty"`
	BlockNumber     string `json:"blockNumber,omitempty"`
	GasUsed         string `json:"gasUsed,omitempty"`
	Error           string `json:"error,omitempty"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Name:    r.Name,
		Success: r.Success,
		Error:   r.Error,
	}

	if r.TransactionHash != nil {
		out.TransactionHash = r.TransactionHash.Hex()
	}
	if r.ResolvedAddress != nil {
		out.ResolvedAddress = r.ResolvedAddress.Hex()
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.String()
	}
	if r.GasUsed > 0 {
		out.GasUsed = new(big.Int).SetUint64(r.GasUsed).String()
	}

	return json.Marshal(out)
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*r = Result{
		Name:    in.Name,
		Success: in.Success,
		Error:   in.Error,
	}

	if in.TransactionHash != "" {
		hash := common.HexToHash(in.TransactionHash)
		r.TransactionHash = &hash
	}
	if in.ResolvedAddress != "" {
		address := common.HexToAddress(in.ResolvedAddress)
		r.ResolvedAddress = &address
	}
	if in.BlockNumber != "" {
		number, ok := new(big.Int).SetString(in.BlockNumber, 10)
		if !ok {
			return fmt.Errorf("invalid block number %q", in.BlockNumber)
		}
		r.BlockNumber = number
	}
	if in.GasUsed != "" {
		gas, ok := new(big.Int).SetString(in.GasUsed, 10)
		if !ok {
			return fmt.Errorf("invalid gas used %q", in.GasUsed)
		}
		r.GasUsed = gas.Uint64()
	}

	return nil
}

type summaryJSON struct {
	SessionID  string   `json:"sessionId"`
	Network    string   `json:"network"`
	ChainID    string   `json:"chainId,omitempty"`
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
	FinishedAt string   `json:"finishedAt"`
}

func (s SessionSummary) MarshalJSON() ([]byte, error) {
	out := summaryJSON{
		SessionID:  s.SessionID,
		Network:    s.Network,
		Total:      s.Total,
		Successful: s.Successful,
		Failed:     s.Failed,
		Results:    s.Results,
		FinishedAt: s.FinishedAt.Format(time.RFC3339),
	}

	if s.ChainID != nil {
		out.ChainID = s.ChainID.String()
	}

	return json.Marshal(out)
}

func (s *SessionSummary) UnmarshalJSON(data []byte) error {
	var in summaryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*s = SessionSummary{
		SessionID:  in.SessionID,
		Network:    in.Network,
		Total:      in.Total,
		Successful: in.Successful,
		Failed:     in.Failed,
		Results:    in.Results,
	}

	if in.ChainID != "" {
		chainID, ok := new(big.Int).SetString(in.ChainID, 10)
		if !ok {
			return fmt.Errorf("invalid chain ID %q", in.ChainID)
		}
		s.ChainID = chainID
	}
	if in.FinishedAt != "" {
		finishedAt, err := time.Parse(time.RFC3339, in.FinishedAt)
		if err != nil {
			return err
		}
		s.FinishedAt = finishedAt
	}

	return nil
}
