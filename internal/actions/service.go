// Package actions orchestrates proof-gated mutations: it validates input, verifies the
// humanity proof, and spends the proof in the same transaction as the domain change.
package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/humanity"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/signals"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultOracleTimeout = 8 * time.Second
	defaultTxTimeout     = 5 * time.Second
)

const (
	opServiceNew      = "actions.service.new"
	opPostQuestion    = "actions.post_question"
	opPostAnswer      = "actions.post_answer"
	opAcceptAnswer    = "actions.accept_answer"
	opArchiveQuestion = "actions.archive_question"
	opLikeNote        = "actions.like_note"
	opUnlikeNote      = "actions.unlike_note"
	opViewNote        = "actions.view_note"
	opGetNote         = "actions.get_note"
	opEditNote        = "actions.edit_note"
	opDeleteNote      = "actions.delete_note"
	opExpectedSignal  = "actions.expected_signal"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingVerifier   = errors.New("verifier is required")
	errMissingGuard      = errors.New("ledger guard is required")
	errMissingIDProvider = errors.New("id provider is required")
	errInvalidViewPolicy = errors.New("unknown view policy")
	noOpLogger           = zap.NewNop()
)

// ViewPolicy selects how POST /notes/:id/view deduplicates.
type ViewPolicy string

const (
	// ViewPolicyProof gates views behind a proof scoped to the note and calendar day.
	ViewPolicyProof ViewPolicy = "proof"
	// ViewPolicyUnique counts each user once per note and needs no proof.
	ViewPolicyUnique ViewPolicy = "unique"
)

// ParseViewPolicy validates a configured view policy.
func ParseViewPolicy(raw string) (ViewPolicy, error) {
	switch policy := ViewPolicy(strings.ToLower(strings.TrimSpace(raw))); policy {
	case ViewPolicyProof, ViewPolicyUnique:
		return policy, nil
	case "":
		return ViewPolicyProof, nil
	default:
		return "", fmt.Errorf("%w: %q", errInvalidViewPolicy, raw)
	}
}

// ServiceConfig wires the Service collaborators.
type ServiceConfig struct {
	Database      *gorm.DB
	Verifier      humanity.Verifier
	Guard         *ledger.Guard
	Signals       *signals.Policy
	IDProvider    notes.IDProvider
	Notifier      Notifier
	ViewPolicy    ViewPolicy
	OracleTimeout time.Duration
	TxTimeout     time.Duration
	Clock         func() time.Time
	Logger        *zap.Logger
}

// Service executes user actions against the store.
type Service struct {
	db            *gorm.DB
	verifier      humanity.Verifier
	guard         *ledger.Guard
	signals       *signals.Policy
	idProvider    notes.IDProvider
	notifier      Notifier
	viewPolicy    ViewPolicy
	oracleTimeout time.Duration
	txTimeout     time.Duration
	clock         func() time.Time
	logger        *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(KindServerError, opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Verifier == nil {
		return nil, newServiceError(KindServerError, opServiceNew, "missing_verifier", errMissingVerifier)
	}
	if cfg.Guard == nil {
		return nil, newServiceError(KindServerError, opServiceNew, "missing_guard", errMissingGuard)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(KindServerError, opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	viewPolicy, err := ParseViewPolicy(string(cfg.ViewPolicy))
	if err != nil {
		return nil, newServiceError(KindServerError, opServiceNew, "invalid_view_policy", err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	policy := cfg.Signals
	if policy == nil {
		policy = signals.NewPolicy(signals.Config{Clock: clock})
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	oracleTimeout := cfg.OracleTimeout
	if oracleTimeout <= 0 {
		oracleTimeout = defaultOracleTimeout
	}
	txTimeout := cfg.TxTimeout
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:            cfg.Database,
		verifier:      cfg.Verifier,
		guard:         cfg.Guard,
		signals:       policy,
		idProvider:    cfg.IDProvider,
		notifier:      notifier,
		viewPolicy:    viewPolicy,
		oracleTimeout: oracleTimeout,
		txTimeout:     txTimeout,
		clock:         clock,
		logger:        logger,
	}, nil
}

// ViewPolicy reports the deployment's view policy.
func (s *Service) ViewPolicy() ViewPolicy {
	return s.viewPolicy
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) requireCaller(operation, userID string) (string, error) {
	caller, err := notes.NewUserID(userID)
	if err != nil {
		return "", newServiceError(KindUnauthenticated, operation, CodeUnauthenticated, err)
	}
	return caller.String(), nil
}

func parseNoteID(operation, code, raw string) (string, error) {
	noteID, err := notes.NewNoteID(raw)
	if err != nil {
		return "", newServiceError(KindBadRequest, operation, code, err)
	}
	return noteID.String(), nil
}

func parseText(operation, raw string) (notes.Text, error) {
	text, err := notes.NewText(raw)
	switch {
	case errors.Is(err, notes.ErrEmptyText):
		return "", newServiceError(KindBadRequest, operation, CodeEmptyText, err)
	case errors.Is(err, notes.ErrTextTooLong):
		return "", newServiceError(KindBadRequest, operation, CodeTooLong, err)
	case err != nil:
		return "", newServiceError(KindBadRequest, operation, CodeEmptyText, err)
	}
	return text, nil
}

// loadNote reads a note outside any transaction. Missing and soft-deleted notes are
// reported as not found unless includeDeleted is set.
func (s *Service) loadNote(ctx context.Context, operation, noteID string, includeDeleted bool) (notes.Note, error) {
	note, err := notes.Load(s.db.WithContext(ctx), noteID)
	if errors.Is(err, notes.ErrNoteNotFound) {
		return notes.Note{}, newServiceError(KindNotFound, operation, CodeNotFound, err)
	}
	if err != nil {
		s.logError(operation, "note_select_failed", err, zap.String("note_id", noteID))
		return notes.Note{}, newServiceError(KindServerError, operation, CodeStoreFailure, err)
	}
	if note.IsDeleted() && !includeDeleted {
		return notes.Note{}, newServiceError(KindNotFound, operation, CodeNotFound, nil)
	}
	return note, nil
}

func (s *Service) storeFailure(operation, reason string, err error, fields ...zap.Field) error {
	s.logError(operation, reason, err, fields...)
	return newServiceError(KindServerError, operation, CodeStoreFailure, err)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("actions service error", attrs...)
}
