package actions

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/signals"
	"gorm.io/gorm"
)

// GetNote returns a live note.
func (s *Service) GetNote(ctx context.Context, rawNoteID string) (notes.Note, error) {
	noteID, err := parseNoteID(opGetNote, CodeInvalidNoteID, rawNoteID)
	if err != nil {
		return notes.Note{}, err
	}
	return s.loadNote(ctx, opGetNote, noteID, false)
}

// EditNote replaces the text of a note owned by the caller.
func (s *Service) EditNote(ctx context.Context, userID, rawNoteID, rawText string) (notes.Note, error) {
	caller, err := s.requireCaller(opEditNote, userID)
	if err != nil {
		return notes.Note{}, err
	}
	noteID, err := parseNoteID(opEditNote, CodeInvalidNoteID, rawNoteID)
	if err != nil {
		return notes.Note{}, err
	}
	text, err := parseText(opEditNote, rawText)
	if err != nil {
		return notes.Note{}, err
	}
	note, err := s.loadNote(ctx, opEditNote, noteID, false)
	if err != nil {
		return notes.Note{}, err
	}
	if note.UserID != caller {
		return notes.Note{}, newServiceError(KindForbidden, opEditNote, CodeForbidden, nil)
	}

	var edited notes.Note
	err = s.commitWithoutProof(ctx, opEditNote, func(tx *gorm.DB) error {
		if err := notes.UpdateText(tx, noteID, text, s.now()); err != nil {
			if errors.Is(err, notes.ErrNoteNotFound) {
				return newServiceError(KindNotFound, opEditNote, CodeNotFound, err)
			}
			return err
		}
		current, err := notes.Load(tx, noteID)
		edited = current
		return err
	})
	if err != nil {
		return notes.Note{}, err
	}
	return edited, nil
}

// DeleteNote soft-deletes a note owned by the caller and repairs accepted-answer
// linkage and answer counts in the same transaction.
func (s *Service) DeleteNote(ctx context.Context, userID, rawNoteID string) error {
	caller, err := s.requireCaller(opDeleteNote, userID)
	if err != nil {
		return err
	}
	noteID, err := parseNoteID(opDeleteNote, CodeInvalidNoteID, rawNoteID)
	if err != nil {
		return err
	}
	note, err := s.loadNote(ctx, opDeleteNote, noteID, true)
	if err != nil {
		return err
	}
	if note.UserID != caller {
		return newServiceError(KindForbidden, opDeleteNote, CodeForbidden, nil)
	}
	if note.IsDeleted() {
		return newServiceError(KindGone, opDeleteNote, CodeAlreadyDeleted, nil)
	}

	return s.commitWithoutProof(ctx, opDeleteNote, func(tx *gorm.DB) error {
		err := notes.SoftDelete(tx, note, s.now())
		if errors.Is(err, notes.ErrAlreadyDeleted) {
			return newServiceError(KindGone, opDeleteNote, CodeAlreadyDeleted, err)
		}
		return err
	})
}

// SignalQuery carries the identifiers a signal preview may need.
type SignalQuery struct {
	CategoryID string
	QuestionID string
	NoteID     string
}

// SignalPreview is the signal a caller must bind its next proof to.
type SignalPreview struct {
	Action signals.Action
	Signal string
}

// ExpectedSignal returns the signal the service will require for the caller's next
// attempt at action.
func (s *Service) ExpectedSignal(ctx context.Context, userID, rawAction string, query SignalQuery) (SignalPreview, error) {
	caller, err := s.requireCaller(opExpectedSignal, userID)
	if err != nil {
		return SignalPreview{}, err
	}
	action, err := signals.ParseAction(rawAction)
	if err != nil {
		return SignalPreview{}, newServiceError(KindBadRequest, opExpectedSignal, CodeUnknownAction, err)
	}

	signalContext := signals.Context{
		CategoryID: query.CategoryID,
		QuestionID: query.QuestionID,
		NoteID:     query.NoteID,
	}
	if noteID := strings.TrimSpace(query.NoteID); action == signals.ActionLikeNote && noteID != "" {
		generation, err := notes.LikeGeneration(s.db.WithContext(ctx), noteID, caller)
		if err != nil {
			return SignalPreview{}, s.storeFailure(opExpectedSignal, "generation_select_failed", err)
		}
		signalContext.LikeGeneration = generation
	}

	signal, err := s.signals.Signal(action, signalContext)
	if err != nil {
		return SignalPreview{}, newServiceError(KindBadRequest, opExpectedSignal, CodeMissingContext, err)
	}
	return SignalPreview{Action: action, Signal: signal}, nil
}
