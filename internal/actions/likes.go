package actions

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/signals"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LikeInput carries a like grant.
type LikeInput struct {
	NoteID string
	Proof  Proof
}

// LikeState is the caller's like state after a toggle.
type LikeState struct {
	Liked     bool
	LikeCount int64
}

// LikeNote grants a like. Each grant spends a proof bound to the note and the caller's
// like generation, so a like removed earlier can be granted again with a fresh proof.
func (s *Service) LikeNote(ctx context.Context, userID string, input LikeInput) (LikeState, error) {
	caller, err := s.requireCaller(opLikeNote, userID)
	if err != nil {
		return LikeState{}, err
	}
	noteID, err := parseNoteID(opLikeNote, CodeInvalidNoteID, input.NoteID)
	if err != nil {
		return LikeState{}, err
	}
	note, err := s.loadNote(ctx, opLikeNote, noteID, false)
	if err != nil {
		return LikeState{}, err
	}

	db := s.db.WithContext(ctx)
	liked, err := notes.HasLike(db, noteID, caller)
	if err != nil {
		return LikeState{}, s.storeFailure(opLikeNote, "like_select_failed", err, zap.String("note_id", noteID))
	}
	if liked {
		return LikeState{}, newServiceError(KindConflict, opLikeNote, CodeAlreadyLiked, nil)
	}
	generation, err := notes.LikeGeneration(db, noteID, caller)
	if err != nil {
		return LikeState{}, s.storeFailure(opLikeNote, "generation_select_failed", err, zap.String("note_id", noteID))
	}

	signal, err := s.signals.Signal(signals.ActionLikeNote, signals.Context{NoteID: noteID, LikeGeneration: generation})
	if err != nil {
		return LikeState{}, newServiceError(KindBadRequest, opLikeNote, CodeMissingContext, err)
	}
	nullifier, err := s.verifyProof(ctx, opLikeNote, signals.ActionLikeNote, signal, input.Proof)
	if err != nil {
		return LikeState{}, err
	}

	now := s.now()
	var state LikeState
	entry := ledger.Entry{Action: signals.ActionLikeNote.String(), Nullifier: nullifier, Signal: signal, UserID: caller}
	err = s.commitWithProof(ctx, opLikeNote, entry, func(tx *gorm.DB) error {
		likeCount, err := notes.AddLike(tx, noteID, caller, now)
		switch {
		case errors.Is(err, notes.ErrAlreadyLiked):
			return newServiceError(KindConflict, opLikeNote, CodeAlreadyLiked, err)
		case errors.Is(err, notes.ErrNoteNotFound):
			return newServiceError(KindNotFound, opLikeNote, CodeNotFound, err)
		case err != nil:
			return err
		}
		state = LikeState{Liked: true, LikeCount: likeCount}
		return nil
	})
	if err != nil {
		return LikeState{}, err
	}

	s.publish(Event{Type: EventNoteLiked, RecipientID: note.UserID, ActorID: caller, NoteID: noteID, QuestionID: questionOf(note)})
	return state, nil
}

// UnlikeNote removes the caller's like without a proof. Removing an absent like
// succeeds and reports the current count.
func (s *Service) UnlikeNote(ctx context.Context, userID, rawNoteID string) (LikeState, error) {
	caller, err := s.requireCaller(opUnlikeNote, userID)
	if err != nil {
		return LikeState{}, err
	}
	noteID, err := parseNoteID(opUnlikeNote, CodeInvalidNoteID, rawNoteID)
	if err != nil {
		return LikeState{}, err
	}
	if _, err := s.loadNote(ctx, opUnlikeNote, noteID, true); err != nil {
		return LikeState{}, err
	}

	var state LikeState
	err = s.commitWithoutProof(ctx, opUnlikeNote, func(tx *gorm.DB) error {
		_, likeCount, err := notes.RemoveLike(tx, noteID, caller)
		if err != nil {
			return err
		}
		state = LikeState{Liked: false, LikeCount: likeCount}
		return nil
	})
	if err != nil {
		return LikeState{}, err
	}
	return state, nil
}

func questionOf(note notes.Note) string {
	if note.IsQuestion() {
		return note.ID
	}
	return note.ParentID
}
