package actions

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a ServiceError for the transport layer.
type ErrorKind string

const (
	KindUnauthenticated    ErrorKind = "unauthenticated"
	KindBadRequest         ErrorKind = "bad_request"
	KindForbidden          ErrorKind = "forbidden"
	KindNotFound           ErrorKind = "not_found"
	KindGone               ErrorKind = "gone"
	KindVerificationFailed ErrorKind = "verification_failed"
	KindReplayDetected     ErrorKind = "replay_detected"
	KindConflict           ErrorKind = "conflict"
	KindServerError        ErrorKind = "server_error"
)

// Stable error codes surfaced to callers.
const (
	CodeUnauthenticated      = "unauthenticated"
	CodeInvalidCategoryID    = "invalid_category_id"
	CodeInvalidQuestionID    = "invalid_question_id"
	CodeInvalidAnswerID      = "invalid_answer_id"
	CodeInvalidNoteID        = "invalid_note_id"
	CodeEmptyText            = "empty_text"
	CodeTooLong              = "too_long"
	CodeNotFound             = "not_found"
	CodeNotAQuestion         = "not_a_question"
	CodeForbidden            = "forbidden"
	CodeAlreadyAccepted      = "already_accepted"
	CodeAlreadyLiked         = "already_liked"
	CodeAlreadyDeleted       = "already_deleted"
	CodeQuestionArchived     = "question_archived"
	CodeInvalidAnswer        = "invalid_answer"
	CodeVerificationRequired = "verification_required"
	CodeMissingSignal        = "missing_signal"
	CodeSignalMismatch       = "signal_mismatch"
	CodeUnknownAction        = "unknown_action"
	CodeMissingContext       = "missing_context"
	CodeVerificationFailed   = "verification_failed"
	CodeReplay               = "replay_or_already_used"
	CodeVerifierTimeout      = "verifier_timeout"
	CodeVerifierUnavailable  = "verifier_unavailable"
	CodeVerifierProtocol     = "verifier_protocol_violation"
	CodeTransactionTimeout   = "transaction_timeout"
	CodeStoreFailure         = "store_failure"
)

// ServiceError is the typed failure returned by every Service operation.
type ServiceError struct {
	kind      ErrorKind
	code      string
	operation string
	detail    string
	err       error
}

func newServiceError(kind ErrorKind, operation, code string, cause error) *ServiceError {
	return &ServiceError{kind: kind, code: code, operation: operation, err: cause}
}

func (e *ServiceError) Error() string {
	message := fmt.Sprintf("%s.%s", e.operation, e.code)
	if e.detail != "" {
		message = fmt.Sprintf("%s (%s)", message, e.detail)
	}
	if e.err == nil {
		return message
	}
	return fmt.Sprintf("%s: %v", message, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Kind returns the failure class.
func (e *ServiceError) Kind() ErrorKind {
	return e.kind
}

// Code returns the stable caller-facing code.
func (e *ServiceError) Code() string {
	return e.code
}

// Operation returns the service operation that failed.
func (e *ServiceError) Operation() string {
	return e.operation
}

// Detail returns the verification sub-code, when present.
func (e *ServiceError) Detail() string {
	return e.detail
}

// AsServiceError extracts a ServiceError from err.
func AsServiceError(err error) (*ServiceError, bool) {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr, true
	}
	return nil, false
}

// settledError lets a transaction commit while the operation still reports a failure.
type settledError struct {
	err *ServiceError
}

func (e *settledError) Error() string {
	return e.err.Error()
}

func (e *settledError) Unwrap() error {
	return e.err
}
