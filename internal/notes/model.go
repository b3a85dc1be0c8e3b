package notes

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// NoteType discriminates questions from answers.
type NoteType string

const (
	// NoteTypeQuestion marks a question; questions own a category and may accept one answer.
	NoteTypeQuestion NoteType = "QUESTION"
	// NoteTypeAnswer marks an answer attached to a question through ParentID.
	NoteTypeAnswer NoteType = "ANSWER"
)

const (
	// MaxTextLength bounds note text in characters.
	MaxTextLength       = 300
	maxIdentifierLength = 190
)

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("notes: invalid user id")
	// ErrInvalidCategoryID indicates that a category identifier is empty or exceeds storage bounds.
	ErrInvalidCategoryID = errors.New("notes: invalid category id")
	// ErrEmptyText indicates that note text is blank after trimming.
	ErrEmptyText = errors.New("notes: empty text")
	// ErrTextTooLong indicates that note text exceeds MaxTextLength characters.
	ErrTextTooLong = errors.New("notes: text too long")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed, err := validateIdentifier(rawInput, ErrInvalidNoteID)
	return NoteID(trimmed), err
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed, err := validateIdentifier(rawInput, ErrInvalidUserID)
	return UserID(trimmed), err
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// CategoryID represents a validated category identifier.
type CategoryID string

// NewCategoryID validates raw input and returns a CategoryID.
func NewCategoryID(rawInput string) (CategoryID, error) {
	trimmed, err := validateIdentifier(rawInput, ErrInvalidCategoryID)
	return CategoryID(trimmed), err
}

// String returns the underlying string identifier.
func (id CategoryID) String() string {
	return string(id)
}

// Text is validated note content.
type Text string

// NewText trims raw input and enforces the length bounds.
func NewText(rawInput string) (Text, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", ErrEmptyText
	}
	if length := utf8.RuneCountInString(trimmed); length > MaxTextLength {
		return "", fmt.Errorf("%w: %d characters exceeds %d", ErrTextTooLong, length, MaxTextLength)
	}
	return Text(trimmed), nil
}

// String returns the text content.
func (t Text) String() string {
	return string(t)
}

func validateIdentifier(rawInput string, sentinel error) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", sentinel)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", sentinel, maxIdentifierLength)
	}
	return trimmed, nil
}

// Note is the persisted question or answer.
type Note struct {
	ID               string     `gorm:"column:id;primaryKey;size:64;not null"`
	Type             NoteType   `gorm:"column:type;size:16;not null;index:idx_notes_parent_type,priority:2"`
	Text             string     `gorm:"column:text;size:1200;not null"`
	UserID           string     `gorm:"column:user_id;size:190;not null;index"`
	CategoryID       string     `gorm:"column:category_id;size:190;not null;default:'';index"`
	ParentID         string     `gorm:"column:parent_id;size:64;not null;default:'';index:idx_notes_parent_type,priority:1"`
	AcceptedAnswerID string     `gorm:"column:accepted_answer_id;size:64;not null;default:''"`
	IsArchived       bool       `gorm:"column:is_archived;not null;default:false"`
	AnswersNum       int64      `gorm:"column:answers_num;not null;default:0"`
	LikeCount        int64      `gorm:"column:like_count;not null;default:0"`
	ViewCount        int64      `gorm:"column:view_count;not null;default:0"`
	CreatedAt        time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;not null"`
	DeletedAt        *time.Time `gorm:"column:deleted_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// IsDeleted reports whether the note was soft-deleted.
func (n Note) IsDeleted() bool {
	return n.DeletedAt != nil
}

// IsQuestion reports whether the note is a question.
func (n Note) IsQuestion() bool {
	return n.Type == NoteTypeQuestion
}

// HasAcceptedAnswer reports whether a question already accepted an answer.
func (n Note) HasAcceptedAnswer() bool {
	return n.AcceptedAnswerID != ""
}

// NoteLike records that a user currently likes a note.
type NoteLike struct {
	NoteID    string    `gorm:"column:note_id;primaryKey;size:64;not null"`
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (NoteLike) TableName() string {
	return "note_likes"
}

// NoteLikeGeneration counts how many times a user removed a like from a note.
type NoteLikeGeneration struct {
	NoteID     string `gorm:"column:note_id;primaryKey;size:64;not null"`
	UserID     string `gorm:"column:user_id;primaryKey;size:190;not null"`
	Generation int64  `gorm:"column:generation;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (NoteLikeGeneration) TableName() string {
	return "note_like_generations"
}

// NoteView records a proof-gated view for a calendar day.
type NoteView struct {
	NoteID    string    `gorm:"column:note_id;primaryKey;size:64;not null"`
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	DayBucket string    `gorm:"column:day_bucket;primaryKey;size:10;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (NoteView) TableName() string {
	return "note_views"
}

// NoteUniqueView records the first proof-free view of a note by a user.
type NoteUniqueView struct {
	NoteID    string    `gorm:"column:note_id;primaryKey;size:64;not null"`
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (NoteUniqueView) TableName() string {
	return "note_unique_views"
}

// Models lists every table owned by this package, in migration order.
func Models() []any {
	return []any{&Note{}, &NoteLike{}, &NoteLikeGeneration{}, &NoteView{}, &NoteUniqueView{}}
}
