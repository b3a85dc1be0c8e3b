package actions

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/signals"
	"gorm.io/gorm"
)

// ViewInput carries a view. Proof is ignored under ViewPolicyUnique.
type ViewInput struct {
	NoteID string
	Proof  Proof
}

// ViewOutcome reports whether the view changed the count.
type ViewOutcome struct {
	Recorded  bool
	ViewCount int64
}

// ViewNote records a view according to the configured policy. A replayed view proof
// is reported as a successful, unrecorded view.
func (s *Service) ViewNote(ctx context.Context, userID string, input ViewInput) (ViewOutcome, error) {
	caller, err := s.requireCaller(opViewNote, userID)
	if err != nil {
		return ViewOutcome{}, err
	}
	noteID, err := parseNoteID(opViewNote, CodeInvalidNoteID, input.NoteID)
	if err != nil {
		return ViewOutcome{}, err
	}
	note, err := s.loadNote(ctx, opViewNote, noteID, false)
	if err != nil {
		return ViewOutcome{}, err
	}

	if s.viewPolicy == ViewPolicyUnique {
		return s.recordUniqueView(ctx, caller, noteID)
	}

	signal, err := s.signals.Signal(signals.ActionViewNote, signals.Context{NoteID: noteID})
	if err != nil {
		return ViewOutcome{}, newServiceError(KindBadRequest, opViewNote, CodeMissingContext, err)
	}
	dayBucket := strings.TrimPrefix(signal, noteID+":")
	nullifier, err := s.verifyProof(ctx, opViewNote, signals.ActionViewNote, signal, input.Proof)
	if err != nil {
		return ViewOutcome{}, err
	}

	now := s.now()
	var outcome ViewOutcome
	entry := ledger.Entry{Action: signals.ActionViewNote.String(), Nullifier: nullifier, Signal: signal, UserID: caller}
	err = s.commitWithProof(ctx, opViewNote, entry, func(tx *gorm.DB) error {
		recorded, viewCount, err := notes.RecordDailyView(tx, noteID, caller, dayBucket, now)
		if errors.Is(err, notes.ErrNoteNotFound) {
			return newServiceError(KindNotFound, opViewNote, CodeNotFound, err)
		}
		if err != nil {
			return err
		}
		outcome = ViewOutcome{Recorded: recorded, ViewCount: viewCount}
		return nil
	})
	if serviceErr, ok := AsServiceError(err); ok && serviceErr.Kind() == KindReplayDetected {
		current, loadErr := s.loadNote(ctx, opViewNote, noteID, true)
		if loadErr != nil {
			return ViewOutcome{Recorded: false, ViewCount: note.ViewCount}, nil
		}
		return ViewOutcome{Recorded: false, ViewCount: current.ViewCount}, nil
	}
	if err != nil {
		return ViewOutcome{}, err
	}
	return outcome, nil
}

func (s *Service) recordUniqueView(ctx context.Context, caller, noteID string) (ViewOutcome, error) {
	var outcome ViewOutcome
	now := s.now()
	err := s.commitWithoutProof(ctx, opViewNote, func(tx *gorm.DB) error {
		recorded, viewCount, err := notes.RecordUniqueView(tx, noteID, caller, now)
		if errors.Is(err, notes.ErrNoteNotFound) {
			return newServiceError(KindNotFound, opViewNote, CodeNotFound, err)
		}
		if err != nil {
			return err
		}
		outcome = ViewOutcome{Recorded: recorded, ViewCount: viewCount}
		return nil
	})
	if err != nil {
		return ViewOutcome{}, err
	}
	return outcome, nil
}
