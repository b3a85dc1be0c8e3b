package notes

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// The functions in this file run inside a transaction owned by the caller. None of
// them commit or roll back; a returned error is the caller's signal to abandon tx.

var (
	// ErrNoteNotFound indicates that no note with the requested id exists.
	ErrNoteNotFound = errors.New("notes: note not found")
	// ErrQuestionUnavailable indicates that the target question is missing, deleted, or archived.
	ErrQuestionUnavailable = errors.New("notes: question unavailable")
	// ErrAlreadyLiked indicates that the user already holds a like on the note.
	ErrAlreadyLiked = errors.New("notes: already liked")
	// ErrAlreadyDeleted indicates that the note was soft-deleted earlier.
	ErrAlreadyDeleted = errors.New("notes: already deleted")
)

// Load fetches a note by id. Soft-deleted notes are returned; callers inspect DeletedAt.
func Load(tx *gorm.DB, noteID string) (Note, error) {
	var note Note
	err := tx.Where("id = ?", noteID).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, ErrNoteNotFound
	}
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

// InsertQuestion persists a new question.
func InsertQuestion(tx *gorm.DB, question *Note) error {
	question.Type = NoteTypeQuestion
	question.ParentID = ""
	return tx.Create(question).Error
}

// InsertAnswer persists an answer and increments its question's answers_num. The
// question must exist, be a question, and be neither deleted nor archived.
func InsertAnswer(tx *gorm.DB, answer *Note) error {
	answer.Type = NoteTypeAnswer
	result := tx.Model(&Note{}).
		Where("id = ? AND type = ? AND deleted_at IS NULL AND is_archived = ?", answer.ParentID, NoteTypeQuestion, false).
		UpdateColumn("answers_num", gorm.Expr("answers_num + ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrQuestionUnavailable
	}
	return tx.Create(answer).Error
}

// IsAnswerOf reports whether answerID names a live answer attached to questionID.
func IsAnswerOf(tx *gorm.DB, questionID, answerID string) (bool, error) {
	var count int64
	err := tx.Model(&Note{}).
		Where("id = ? AND type = ? AND parent_id = ? AND deleted_at IS NULL", answerID, NoteTypeAnswer, questionID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SwapAcceptedAnswer moves a question's accepted_answer_id from one value to another
// with a compare-and-set. It returns false when the pointer no longer holds from.
// Setting a non-empty pointer additionally requires the question to be live.
func SwapAcceptedAnswer(tx *gorm.DB, questionID, from, to string, now time.Time) (bool, error) {
	query := tx.Model(&Note{}).
		Where("id = ? AND type = ? AND accepted_answer_id = ?", questionID, NoteTypeQuestion, from)
	if to != "" {
		query = query.Where("deleted_at IS NULL")
	}
	result := query.Updates(map[string]any{
		"accepted_answer_id": to,
		"updated_at":         now,
	})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateText replaces the text of a live note.
func UpdateText(tx *gorm.DB, noteID string, text Text, now time.Time) error {
	result := tx.Model(&Note{}).
		Where("id = ? AND deleted_at IS NULL", noteID).
		Updates(map[string]any{"text": text.String(), "updated_at": now})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNoteNotFound
	}
	return nil
}

// Archive marks a live question as archived. Archiving twice is not an error.
func Archive(tx *gorm.DB, questionID string, now time.Time) error {
	result := tx.Model(&Note{}).
		Where("id = ? AND type = ? AND deleted_at IS NULL", questionID, NoteTypeQuestion).
		Updates(map[string]any{"is_archived": true, "updated_at": now})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrQuestionUnavailable
	}
	return nil
}

// SoftDelete stamps deleted_at on a note and repairs the linkage around it: a question
// drops its accepted answer, an answer releases its parent's pointer and answer count.
func SoftDelete(tx *gorm.DB, note Note, now time.Time) error {
	result := tx.Model(&Note{}).
		Where("id = ? AND deleted_at IS NULL", note.ID).
		Updates(map[string]any{"deleted_at": now, "updated_at": now})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyDeleted
	}

	switch note.Type {
	case NoteTypeQuestion:
		current, err := Load(tx, note.ID)
		if err != nil {
			return err
		}
		if current.AcceptedAnswerID == "" {
			return nil
		}
		if _, err := SwapAcceptedAnswer(tx, note.ID, current.AcceptedAnswerID, "", now); err != nil {
			return fmt.Errorf("clear accepted answer: %w", err)
		}
	case NoteTypeAnswer:
		if _, err := SwapAcceptedAnswer(tx, note.ParentID, note.ID, "", now); err != nil {
			return fmt.Errorf("release parent pointer: %w", err)
		}
		err := tx.Model(&Note{}).
			Where("id = ? AND answers_num > 0", note.ParentID).
			UpdateColumn("answers_num", gorm.Expr("answers_num - ?", 1)).Error
		if err != nil {
			return fmt.Errorf("decrement answers: %w", err)
		}
	}
	return nil
}

// HasLike reports whether the user currently likes the note.
func HasLike(tx *gorm.DB, noteID, userID string) (bool, error) {
	var count int64
	err := tx.Model(&NoteLike{}).Where("note_id = ? AND user_id = ?", noteID, userID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// LikeGeneration returns how many effective unlikes the user has performed on the note.
func LikeGeneration(tx *gorm.DB, noteID, userID string) (int64, error) {
	var generation NoteLikeGeneration
	err := tx.Where("note_id = ? AND user_id = ?", noteID, userID).Take(&generation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return generation.Generation, nil
}

// AddLike inserts the like row and increments like_count on a live note. It returns
// the resulting like_count.
func AddLike(tx *gorm.DB, noteID, userID string, now time.Time) (int64, error) {
	like := NoteLike{NoteID: noteID, UserID: userID, CreatedAt: now}
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrAlreadyLiked
	}

	update := tx.Model(&Note{}).
		Where("id = ? AND deleted_at IS NULL", noteID).
		UpdateColumn("like_count", gorm.Expr("like_count + ?", 1))
	if update.Error != nil {
		return 0, update.Error
	}
	if update.RowsAffected == 0 {
		return 0, ErrNoteNotFound
	}
	return counter(tx, noteID, "like_count")
}

// RemoveLike deletes the like row when present, decrements like_count without going
// below zero, and advances the like generation. Removing an absent like changes nothing.
func RemoveLike(tx *gorm.DB, noteID, userID string) (bool, int64, error) {
	result := tx.Where("note_id = ? AND user_id = ?", noteID, userID).Delete(&NoteLike{})
	if result.Error != nil {
		return false, 0, result.Error
	}
	removed := result.RowsAffected > 0

	if removed {
		err := tx.Model(&Note{}).
			Where("id = ? AND like_count > 0", noteID).
			UpdateColumn("like_count", gorm.Expr("like_count - ?", 1)).Error
		if err != nil {
			return false, 0, err
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "note_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{"generation": gorm.Expr("note_like_generations.generation + 1")}),
		}).Create(&NoteLikeGeneration{NoteID: noteID, UserID: userID, Generation: 1}).Error
		if err != nil {
			return false, 0, err
		}
	}

	likeCount, err := counter(tx, noteID, "like_count")
	if err != nil {
		return false, 0, err
	}
	return removed, likeCount, nil
}

// RecordDailyView inserts the (note, user, day) view and increments view_count when
// the row is new. It reports whether a view was recorded and the resulting view_count.
func RecordDailyView(tx *gorm.DB, noteID, userID, dayBucket string, now time.Time) (bool, int64, error) {
	view := NoteView{NoteID: noteID, UserID: userID, DayBucket: dayBucket, CreatedAt: now}
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&view)
	if result.Error != nil {
		return false, 0, result.Error
	}
	recorded := result.RowsAffected > 0
	if recorded {
		update := tx.Model(&Note{}).
			Where("id = ? AND deleted_at IS NULL", noteID).
			UpdateColumn("view_count", gorm.Expr("view_count + ?", 1))
		if update.Error != nil {
			return false, 0, update.Error
		}
		if update.RowsAffected == 0 {
			return false, 0, ErrNoteNotFound
		}
	}
	viewCount, err := counter(tx, noteID, "view_count")
	if err != nil {
		return false, 0, err
	}
	return recorded, viewCount, nil
}

// RecordUniqueView inserts the lifetime (note, user) view and recomputes view_count
// from the stored rows in the same UPDATE statement.
func RecordUniqueView(tx *gorm.DB, noteID, userID string, now time.Time) (bool, int64, error) {
	view := NoteUniqueView{NoteID: noteID, UserID: userID, CreatedAt: now}
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&view)
	if result.Error != nil {
		return false, 0, result.Error
	}

	update := tx.Model(&Note{}).
		Where("id = ? AND deleted_at IS NULL", noteID).
		UpdateColumn("view_count", gorm.Expr("(SELECT COUNT(*) FROM note_unique_views WHERE note_unique_views.note_id = ?)", noteID))
	if update.Error != nil {
		return false, 0, update.Error
	}
	if update.RowsAffected == 0 {
		return false, 0, ErrNoteNotFound
	}
	viewCount, err := counter(tx, noteID, "view_count")
	if err != nil {
		return false, 0, err
	}
	return result.RowsAffected > 0, viewCount, nil
}

func counter(tx *gorm.DB, noteID, column string) (int64, error) {
	var values []int64
	if err := tx.Model(&Note{}).Where("id = ?", noteID).Pluck(column, &values).Error; err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, ErrNoteNotFound
	}
	return values[0], nil
}
