// Package humanity is the boundary to the external proof-of-personhood oracle.
package humanity

import (
	"context"
	"encoding/json"
	"errors"
)

// FailureCode classifies an oracle rejection.
type FailureCode string

const (
	// FailureInvalidProof indicates the proof did not verify.
	FailureInvalidProof FailureCode = "invalid_proof"
	// FailureExpiredProof indicates the proof was generated against a stale root or has expired.
	FailureExpiredProof FailureCode = "expired_proof"
	// FailureLimitExhausted indicates the human exhausted the verification budget for the action.
	FailureLimitExhausted FailureCode = "limit_exhausted"
	// FailureRejected covers rejections the oracle did not classify further.
	FailureRejected FailureCode = "rejected"
)

var (
	// ErrOracleUnavailable indicates a transport failure or unexpected oracle response.
	ErrOracleUnavailable = errors.New("humanity: oracle unavailable")
	// ErrMissingNullifier indicates the oracle accepted a proof without returning a nullifier.
	ErrMissingNullifier = errors.New("humanity: accepted response missing nullifier")
	// ErrInvalidOracleConfig indicates the oracle client configuration is incomplete.
	ErrInvalidOracleConfig = errors.New("humanity: invalid oracle config")
)

// Request is a single verification call.
type Request struct {
	Action string
	Signal string
	Proof  json.RawMessage
}

// Result is the oracle verdict. FailureCode is set only when Accepted is false.
type Result struct {
	Accepted    bool
	Nullifier   string
	FailureCode FailureCode
	Detail      string
}

// Verifier verifies humanity proofs. Implementations must be safe for concurrent use
// and must not persist anything.
type Verifier interface {
	Verify(ctx context.Context, request Request) (Result, error)
}
