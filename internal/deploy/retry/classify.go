package retry

import (
	"context"
	"errors"
	"strings"

	"github.com/compose-network/singleton-deployer/internal/deploy/deployerr"
)

// transientSignatures are message fragments of failures that usually clear on
// their own: transport timeouts, resets, DNS hiccups, rate limits, flaky
// upstream gateways.
var transientSignatures = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"broken pipe",
	"eof",
	"no such host",
	"network is unreachable",
	"too many requests",
	"rate limit",
	"429",
	"502",
	"503",
	"504",
}

// IsRetryable is the default classifier. Network-kind errors are retryable;
// an on-chain transaction failure is a final outcome, never transient.
// Unclassified errors are matched against known transient signatures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	if kind, ok := deployerr.KindOf(err); ok {
		switch kind {
		case deployerr.KindNetwork:
			return true
		case deployerr.KindTransaction, deployerr.KindValidation, deployerr.KindConfig:
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	for _, signature := range transientSignatures {
		if strings.Contains(msg, signature) {
			return true
		}
	}

	return false
}
