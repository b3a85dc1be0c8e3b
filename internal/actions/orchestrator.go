package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/humanity"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/signals"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Proof is the humanity proof a caller submits together with the signal it was
// generated for. Payload is opaque to this service and forwarded to the oracle.
type Proof struct {
	Signal  string
	Payload json.RawMessage
}

func (p Proof) present() bool {
	trimmed := bytes.TrimSpace(p.Payload)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// verifyProof checks the submitted signal against the expected one and asks the
// oracle for a verdict. It returns the nullifier of an accepted proof.
func (s *Service) verifyProof(ctx context.Context, operation string, action signals.Action, expectedSignal string, proof Proof) (string, error) {
	if !proof.present() {
		return "", newServiceError(KindBadRequest, operation, CodeVerificationRequired, nil)
	}
	submitted := strings.TrimSpace(proof.Signal)
	if submitted == "" {
		return "", newServiceError(KindBadRequest, operation, CodeMissingSignal, nil)
	}
	if submitted != expectedSignal {
		return "", newServiceError(KindBadRequest, operation, CodeSignalMismatch, nil)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, s.oracleTimeout)
	defer cancel()

	result, err := s.verifier.Verify(verifyCtx, humanity.Request{
		Action: action.String(),
		Signal: expectedSignal,
		Proof:  proof.Payload,
	})
	if err != nil {
		switch {
		case errors.Is(err, humanity.ErrMissingNullifier):
			s.logError(operation, "verifier_protocol_violation", err, zap.String("action", action.String()))
			return "", newServiceError(KindServerError, operation, CodeVerifierProtocol, err)
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(verifyCtx.Err(), context.DeadlineExceeded):
			s.logError(operation, "verifier_timeout", err, zap.String("action", action.String()))
			return "", newServiceError(KindServerError, operation, CodeVerifierTimeout, err)
		default:
			s.logError(operation, "verifier_unavailable", err, zap.String("action", action.String()))
			return "", newServiceError(KindServerError, operation, CodeVerifierUnavailable, err)
		}
	}
	if !result.Accepted {
		failureCode := result.FailureCode
		if failureCode == "" {
			failureCode = humanity.FailureRejected
		}
		serviceErr := newServiceError(KindVerificationFailed, operation, CodeVerificationFailed, nil)
		serviceErr.detail = string(failureCode)
		return "", serviceErr
	}
	nullifier := strings.TrimSpace(result.Nullifier)
	if nullifier == "" {
		s.logError(operation, "verifier_protocol_violation", humanity.ErrMissingNullifier, zap.String("action", action.String()))
		return "", newServiceError(KindServerError, operation, CodeVerifierProtocol, humanity.ErrMissingNullifier)
	}
	return nullifier, nil
}

// commitWithProof spends the proof and applies mutate in one transaction.
// Spent proofs are rejected by a bounded read before the transaction opens. A
// replay that races past that read aborts inside the transaction before mutate
// runs. A mutate failure rolls the ledger row back. A mutate returning a
// settledError commits both and still reports the wrapped failure.
func (s *Service) commitWithProof(ctx context.Context, operation string, entry ledger.Entry, mutate func(tx *gorm.DB) error) error {
	lookupCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	consumed, err := ledger.Consumed(lookupCtx, s.db, entry.Action, entry.Nullifier, entry.Signal)
	cancel()
	if err != nil {
		s.logError(operation, "ledger_lookup_failed", err, zap.String("action", entry.Action))
	}
	if consumed {
		return newServiceError(KindReplayDetected, operation, CodeReplay, ledger.ErrReplayDetected)
	}

	var settled *ServiceError
	err = s.transact(ctx, func(tx *gorm.DB) error {
		if _, err := s.guard.Consume(tx, entry); err != nil {
			return err
		}
		if err := mutate(tx); err != nil {
			var settledErr *settledError
			if errors.As(err, &settledErr) {
				settled = settledErr.err
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrReplayDetected) {
			return newServiceError(KindReplayDetected, operation, CodeReplay, err)
		}
		return s.transactionFailure(ctx, operation, err, zap.String("action", entry.Action))
	}
	if settled != nil {
		return settled
	}
	return nil
}

// commitWithoutProof runs mutate in a bounded transaction for actions that need no proof.
func (s *Service) commitWithoutProof(ctx context.Context, operation string, mutate func(tx *gorm.DB) error) error {
	if err := s.transact(ctx, mutate); err != nil {
		return s.transactionFailure(ctx, operation, err)
	}
	return nil
}

func (s *Service) transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()
	err := s.db.WithContext(txCtx).Transaction(fn)
	if err != nil && errors.Is(txCtx.Err(), context.DeadlineExceeded) && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Join(err, errTransactionTimeout)
	}
	return err
}

var errTransactionTimeout = errors.New("transaction deadline exceeded")

func (s *Service) transactionFailure(ctx context.Context, operation string, err error, fields ...zap.Field) error {
	if serviceErr, ok := AsServiceError(err); ok {
		return serviceErr
	}
	if errors.Is(err, errTransactionTimeout) || errors.Is(err, context.DeadlineExceeded) {
		s.logError(operation, "transaction_timeout", err, fields...)
		return newServiceError(KindServerError, operation, CodeTransactionTimeout, err)
	}
	if ctx.Err() != nil {
		return newServiceError(KindServerError, operation, CodeStoreFailure, ctx.Err())
	}
	return s.storeFailure(operation, "transaction_failed", err, fields...)
}

func settle(err *ServiceError) error {
	return &settledError{err: err}
}
