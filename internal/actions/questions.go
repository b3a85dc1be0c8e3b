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

// PostQuestionInput carries a new question.
type PostQuestionInput struct {
	CategoryID string
	Text       string
	Proof      Proof
}

// PostAnswerInput carries a new answer to an existing question.
type PostAnswerInput struct {
	QuestionID string
	Text       string
	Proof      Proof
}

// AcceptAnswerInput names the answer a question owner accepts.
type AcceptAnswerInput struct {
	QuestionID string
	AnswerID   string
	Proof      Proof
}

// PostQuestion creates a question. One proof per human, category and day.
func (s *Service) PostQuestion(ctx context.Context, userID string, input PostQuestionInput) (notes.Note, error) {
	caller, err := s.requireCaller(opPostQuestion, userID)
	if err != nil {
		return notes.Note{}, err
	}
	categoryID, err := notes.NewCategoryID(input.CategoryID)
	if err != nil {
		return notes.Note{}, newServiceError(KindBadRequest, opPostQuestion, CodeInvalidCategoryID, err)
	}
	text, err := parseText(opPostQuestion, input.Text)
	if err != nil {
		return notes.Note{}, err
	}

	signal, err := s.signals.Signal(signals.ActionPostQuestion, signals.Context{CategoryID: categoryID.String()})
	if err != nil {
		return notes.Note{}, newServiceError(KindBadRequest, opPostQuestion, CodeMissingContext, err)
	}
	nullifier, err := s.verifyProof(ctx, opPostQuestion, signals.ActionPostQuestion, signal, input.Proof)
	if err != nil {
		return notes.Note{}, err
	}

	noteID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opPostQuestion, "id_generation_failed", err)
		return notes.Note{}, newServiceError(KindServerError, opPostQuestion, CodeStoreFailure, err)
	}
	now := s.now()
	question := notes.Note{
		ID:         noteID,
		Text:       text.String(),
		UserID:     caller,
		CategoryID: categoryID.String(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	entry := ledger.Entry{Action: signals.ActionPostQuestion.String(), Nullifier: nullifier, Signal: signal, UserID: caller}
	err = s.commitWithProof(ctx, opPostQuestion, entry, func(tx *gorm.DB) error {
		return notes.InsertQuestion(tx, &question)
	})
	if err != nil {
		return notes.Note{}, err
	}
	return question, nil
}

// PostAnswer attaches an answer to a live, unarchived question. One proof per human,
// question and day.
func (s *Service) PostAnswer(ctx context.Context, userID string, input PostAnswerInput) (notes.Note, error) {
	caller, err := s.requireCaller(opPostAnswer, userID)
	if err != nil {
		return notes.Note{}, err
	}
	questionID, err := parseNoteID(opPostAnswer, CodeInvalidQuestionID, input.QuestionID)
	if err != nil {
		return notes.Note{}, err
	}
	text, err := parseText(opPostAnswer, input.Text)
	if err != nil {
		return notes.Note{}, err
	}
	question, err := s.loadNote(ctx, opPostAnswer, questionID, false)
	if err != nil {
		return notes.Note{}, err
	}
	if !question.IsQuestion() {
		return notes.Note{}, newServiceError(KindBadRequest, opPostAnswer, CodeNotAQuestion, nil)
	}
	if question.IsArchived {
		return notes.Note{}, newServiceError(KindConflict, opPostAnswer, CodeQuestionArchived, nil)
	}

	signal, err := s.signals.Signal(signals.ActionPostAnswer, signals.Context{QuestionID: questionID})
	if err != nil {
		return notes.Note{}, newServiceError(KindBadRequest, opPostAnswer, CodeMissingContext, err)
	}
	nullifier, err := s.verifyProof(ctx, opPostAnswer, signals.ActionPostAnswer, signal, input.Proof)
	if err != nil {
		return notes.Note{}, err
	}

	noteID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opPostAnswer, "id_generation_failed", err)
		return notes.Note{}, newServiceError(KindServerError, opPostAnswer, CodeStoreFailure, err)
	}
	now := s.now()
	answer := notes.Note{
		ID:         noteID,
		Text:       text.String(),
		UserID:     caller,
		CategoryID: question.CategoryID,
		ParentID:   questionID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	entry := ledger.Entry{Action: signals.ActionPostAnswer.String(), Nullifier: nullifier, Signal: signal, UserID: caller}
	err = s.commitWithProof(ctx, opPostAnswer, entry, func(tx *gorm.DB) error {
		err := notes.InsertAnswer(tx, &answer)
		if !errors.Is(err, notes.ErrQuestionUnavailable) {
			return err
		}
		current, loadErr := notes.Load(tx, questionID)
		if loadErr == nil && !current.IsDeleted() && current.IsArchived {
			return newServiceError(KindConflict, opPostAnswer, CodeQuestionArchived, err)
		}
		return newServiceError(KindNotFound, opPostAnswer, CodeNotFound, err)
	})
	if err != nil {
		return notes.Note{}, err
	}

	s.publish(Event{Type: EventAnswerPosted, RecipientID: question.UserID, ActorID: caller, NoteID: answer.ID, QuestionID: questionID})
	return answer, nil
}

// AcceptAnswer sets the question's accepted answer. Only the question owner may accept,
// and only once. When two accepts race, the loser's proof stays spent and it receives
// a conflict.
func (s *Service) AcceptAnswer(ctx context.Context, userID string, input AcceptAnswerInput) (notes.Note, error) {
	caller, err := s.requireCaller(opAcceptAnswer, userID)
	if err != nil {
		return notes.Note{}, err
	}
	questionID, err := parseNoteID(opAcceptAnswer, CodeInvalidQuestionID, input.QuestionID)
	if err != nil {
		return notes.Note{}, err
	}
	answerID, err := parseNoteID(opAcceptAnswer, CodeInvalidAnswerID, input.AnswerID)
	if err != nil {
		return notes.Note{}, err
	}
	question, err := s.loadNote(ctx, opAcceptAnswer, questionID, false)
	if err != nil {
		return notes.Note{}, err
	}
	if !question.IsQuestion() {
		return notes.Note{}, newServiceError(KindBadRequest, opAcceptAnswer, CodeNotAQuestion, nil)
	}
	if question.UserID != caller {
		return notes.Note{}, newServiceError(KindForbidden, opAcceptAnswer, CodeForbidden, nil)
	}
	if question.HasAcceptedAnswer() {
		return notes.Note{}, newServiceError(KindConflict, opAcceptAnswer, CodeAlreadyAccepted, nil)
	}
	valid, err := notes.IsAnswerOf(s.db.WithContext(ctx), questionID, answerID)
	if err != nil {
		return notes.Note{}, s.storeFailure(opAcceptAnswer, "answer_select_failed", err, zap.String("answer_id", answerID))
	}
	if !valid {
		return notes.Note{}, newServiceError(KindBadRequest, opAcceptAnswer, CodeInvalidAnswer, nil)
	}

	signal, err := s.signals.Signal(signals.ActionAcceptAnswer, signals.Context{QuestionID: questionID})
	if err != nil {
		return notes.Note{}, newServiceError(KindBadRequest, opAcceptAnswer, CodeMissingContext, err)
	}
	nullifier, err := s.verifyProof(ctx, opAcceptAnswer, signals.ActionAcceptAnswer, signal, input.Proof)
	if err != nil {
		return notes.Note{}, err
	}

	now := s.now()
	var accepted notes.Note
	entry := ledger.Entry{Action: signals.ActionAcceptAnswer.String(), Nullifier: nullifier, Signal: signal, UserID: caller}
	err = s.commitWithProof(ctx, opAcceptAnswer, entry, func(tx *gorm.DB) error {
		valid, err := notes.IsAnswerOf(tx, questionID, answerID)
		if err != nil {
			return err
		}
		if !valid {
			return newServiceError(KindBadRequest, opAcceptAnswer, CodeInvalidAnswer, nil)
		}
		swapped, err := notes.SwapAcceptedAnswer(tx, questionID, "", answerID, now)
		if err != nil {
			return err
		}
		current, err := notes.Load(tx, questionID)
		if err != nil {
			return err
		}
		if !swapped {
			if current.IsDeleted() {
				return newServiceError(KindNotFound, opAcceptAnswer, CodeNotFound, nil)
			}
			return settle(newServiceError(KindConflict, opAcceptAnswer, CodeAlreadyAccepted, nil))
		}
		accepted = current
		return nil
	})
	if err != nil {
		return notes.Note{}, err
	}

	if answer, loadErr := notes.Load(s.db.WithContext(ctx), answerID); loadErr == nil {
		s.publish(Event{Type: EventAnswerAccepted, RecipientID: answer.UserID, ActorID: caller, NoteID: answerID, QuestionID: questionID})
	}
	return accepted, nil
}

// ArchiveQuestion closes a question to new answers. No proof is required.
func (s *Service) ArchiveQuestion(ctx context.Context, userID, rawQuestionID string) (notes.Note, error) {
	caller, err := s.requireCaller(opArchiveQuestion, userID)
	if err != nil {
		return notes.Note{}, err
	}
	questionID, err := parseNoteID(opArchiveQuestion, CodeInvalidQuestionID, rawQuestionID)
	if err != nil {
		return notes.Note{}, err
	}
	question, err := s.loadNote(ctx, opArchiveQuestion, questionID, false)
	if err != nil {
		return notes.Note{}, err
	}
	if !question.IsQuestion() {
		return notes.Note{}, newServiceError(KindBadRequest, opArchiveQuestion, CodeNotAQuestion, nil)
	}
	if question.UserID != caller {
		return notes.Note{}, newServiceError(KindForbidden, opArchiveQuestion, CodeForbidden, nil)
	}

	var archived notes.Note
	err = s.commitWithoutProof(ctx, opArchiveQuestion, func(tx *gorm.DB) error {
		if err := notes.Archive(tx, questionID, s.now()); err != nil {
			if errors.Is(err, notes.ErrQuestionUnavailable) {
				return newServiceError(KindNotFound, opArchiveQuestion, CodeNotFound, err)
			}
			return err
		}
		current, err := notes.Load(tx, questionID)
		archived = current
		return err
	})
	if err != nil {
		return notes.Note{}, err
	}
	return archived, nil
}
