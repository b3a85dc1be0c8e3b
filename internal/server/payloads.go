package server

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/actions"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/notes"
	"github.com/gin-gonic/gin"
)

var errInvalidRequestBody = errors.New("request body is not valid JSON")

type proofPayload struct {
	Signal string          `json:"signal"`
	Proof  json.RawMessage `json:"proof"`
}

func (p proofPayload) toProof() actions.Proof {
	return actions.Proof{Signal: p.Signal, Payload: p.Proof}
}

type postQuestionRequest struct {
	proofPayload
	CategoryID string `json:"category_id"`
	Text       string `json:"text"`
}

type postAnswerRequest struct {
	proofPayload
	Text string `json:"text"`
}

type acceptAnswerRequest struct {
	proofPayload
	AnswerID string `json:"answer_id"`
}

type editNoteRequest struct {
	Text string `json:"text"`
}

type noteResponse struct {
	ID               string     `json:"id"`
	Type             string     `json:"type"`
	Text             string     `json:"text"`
	UserID           string     `json:"user_id"`
	CategoryID       string     `json:"category_id,omitempty"`
	ParentID         string     `json:"parent_id,omitempty"`
	AcceptedAnswerID string     `json:"accepted_answer_id,omitempty"`
	IsArchived       bool       `json:"is_archived"`
	AnswersNum       int64      `json:"answers_num"`
	LikeCount        int64      `json:"like_count"`
	ViewCount        int64      `json:"view_count"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
}

func newNoteResponse(note notes.Note) noteResponse {
	return noteResponse{
		ID:               note.ID,
		Type:             string(note.Type),
		Text:             note.Text,
		UserID:           note.UserID,
		CategoryID:       note.CategoryID,
		ParentID:         note.ParentID,
		AcceptedAnswerID: note.AcceptedAnswerID,
		IsArchived:       note.IsArchived,
		AnswersNum:       note.AnswersNum,
		LikeCount:        note.LikeCount,
		ViewCount:        note.ViewCount,
		CreatedAt:        note.CreatedAt.UTC(),
		UpdatedAt:        note.UpdatedAt.UTC(),
		DeletedAt:        note.DeletedAt,
	}
}

type likeResponse struct {
	Liked     bool  `json:"liked"`
	LikeCount int64 `json:"like_count"`
}

type viewResponse struct {
	Recorded  bool  `json:"recorded"`
	ViewCount int64 `json:"view_count"`
}

type signalResponse struct {
	Action string `json:"action"`
	Signal string `json:"signal"`
}

type eventPayload struct {
	Type       string    `json:"type"`
	NoteID     string    `json:"note_id,omitempty"`
	QuestionID string    `json:"question_id,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
}

// bindOptionalJSON decodes the body into target. An empty body leaves target zeroed so
// the service can report what is missing.
func bindOptionalJSON(c *gin.Context, target any) error {
	if c.Request.Body == nil {
		return nil
	}
	if err := c.ShouldBindJSON(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errInvalidRequestBody
	}
	return nil
}
