// Package remote delivers readings to the remote authority. Two transports
// are provided: the bulk HTTP ingest API and direct time-series ingestion.
// Both share the same contract: a batch is accepted all-or-nothing, so an
// error means no reading in the batch may be considered durable remotely.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"

	"sensorsync/internal/telemetry"
)

// Writer is the transport used by the sync engine.
type Writer interface {
	WriteBatch(ctx context.Context, readings []telemetry.Reading) error
}

// Kind categorizes a transfer failure. Timeout and refused are distinguished
// for logging (a timeout may mean a still-processing remote, refused means it
// is down); both count identically toward the circuit breaker.
type Kind int

const (
	// KindRejected: the remote answered and declined the batch.
	KindRejected Kind = iota
	// KindTimeout: the attempt exceeded its deadline.
	KindTimeout
	// KindRefused: connection refused or otherwise unreachable.
	KindRefused
)

func (k Kind) String() string {
	switch k {
	case KindRejected:
		return "rejected"
	case KindTimeout:
		return "timeout"
	case KindRefused:
		return "refused"
	default:
		return "unknown"
	}
}

// TransferError wraps a failed delivery attempt with its failure kind.
type TransferError struct {
	Kind Kind
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s: %v", e.Kind, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// AsTransferError unwraps err to a TransferError if it carries one.
func AsTransferError(err error) (*TransferError, bool) {
	var te *TransferError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// transferErr classifies a transport error into a TransferError.
func transferErr(err error) error {
	kind := KindRefused
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	return &TransferError{Kind: kind, Err: err}
}
