// Package deployerr defines the closed error taxonomy of the deployment
// engine. Every failure crossing a component boundary carries a Kind, so the
// retry classifier and the top-level formatter can switch on it exhaustively.
package deployerr

import (
	"errors"
	"fmt"
)

// Kind partitions failures by how they propagate: configuration errors abort
// before the batch, transaction errors are final, network errors are
// candidates for retry.
type Kind int

const (
	KindConfig Kind = iota
	KindValidation
	KindNetwork
	KindTransaction
	KindGasEstimation
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindTransaction:
		return "transaction"
	case KindGasEstimation:
		return "gas_estimation"
	default:
		return "unknown"
	}
}

// Error is a classified failure with an optional wrapped cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a classified error without a cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// KindOf reports the kind carried by err, unwrapping as needed. The second
// return is false when err carries no classification.
func KindOf(err error) (Kind, bool) {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	found, ok := KindOf(err)
	return ok && found == kind
}
