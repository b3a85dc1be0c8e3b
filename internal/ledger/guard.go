// Package ledger records consumed humanity proofs. Inserting a record is the single
// point at which a proof is spent.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrReplayDetected indicates the (action, nullifier, signal) triple was already consumed.
	ErrReplayDetected = errors.New("ledger: proof already consumed")
	// ErrInvalidRecord indicates a record is missing one of its scope fields.
	ErrInvalidRecord = errors.New("ledger: invalid record")
)

var errMissingIDProvider = errors.New("ledger: id provider is required")

// IDProvider issues identifiers for ledger rows.
type IDProvider interface {
	NewID() (string, error)
}

// Entry describes a proof about to be consumed.
type Entry struct {
	Action    string
	Nullifier string
	Signal    string
	UserID    string
}

// GuardConfig configures a Guard.
type GuardConfig struct {
	IDProvider IDProvider
	Clock      func() time.Time
}

// Guard inserts ledger rows inside caller-owned transactions.
type Guard struct {
	idProvider IDProvider
	clock      func() time.Time
}

// NewGuard constructs a Guard.
func NewGuard(cfg GuardConfig) (*Guard, error) {
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Guard{idProvider: cfg.IDProvider, clock: clock}, nil
}

// Consume records the entry within tx. It returns ErrReplayDetected when the scope
// triple already exists; the caller must then abandon the transaction.
func (g *Guard) Consume(tx *gorm.DB, entry Entry) (ActionProofRecord, error) {
	if strings.TrimSpace(entry.Action) == "" || strings.TrimSpace(entry.Nullifier) == "" || strings.TrimSpace(entry.Signal) == "" {
		return ActionProofRecord{}, ErrInvalidRecord
	}

	recordID, err := g.idProvider.NewID()
	if err != nil {
		return ActionProofRecord{}, fmt.Errorf("ledger: id generation failed: %w", err)
	}

	record := ActionProofRecord{
		ID:        recordID,
		Action:    entry.Action,
		Nullifier: entry.Nullifier,
		Signal:    entry.Signal,
		UserID:    entry.UserID,
		CreatedAt: g.clock().UTC(),
	}

	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
	if result.Error != nil {
		if IsUniqueViolation(result.Error) {
			return ActionProofRecord{}, fmt.Errorf("%w: %v", ErrReplayDetected, result.Error)
		}
		return ActionProofRecord{}, result.Error
	}
	if result.RowsAffected == 0 {
		return ActionProofRecord{}, ErrReplayDetected
	}
	return record, nil
}

// Consumed reports whether the scope triple has been spent.
func Consumed(ctx context.Context, db *gorm.DB, action, nullifier, signal string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&ActionProofRecord{}).
		Where("action = ? AND nullifier = ? AND signal = ?", action, nullifier, signal).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
