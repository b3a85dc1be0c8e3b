package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/actions"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleSignalPreview(c *gin.Context) {
	preview, err := h.actions.ExpectedSignal(c.Request.Context(), c.GetString(userIDContextKey), c.Param("action"), actions.SignalQuery{
		CategoryID: c.Query("category_id"),
		QuestionID: c.Query("question_id"),
		NoteID:     c.Query("note_id"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, signalResponse{Action: preview.Action.String(), Signal: preview.Signal})
}

func (h *httpHandler) handlePostQuestion(c *gin.Context) {
	var request postQuestionRequest
	if err := bindOptionalJSON(c, &request); err != nil {
		h.respondInvalidRequest(c)
		return
	}
	question, err := h.actions.PostQuestion(c.Request.Context(), c.GetString(userIDContextKey), actions.PostQuestionInput{
		CategoryID: request.CategoryID,
		Text:       request.Text,
		Proof:      request.toProof(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newNoteResponse(question))
}

func (h *httpHandler) handlePostAnswer(c *gin.Context) {
	var request postAnswerRequest
	if err := bindOptionalJSON(c, &request); err != nil {
		h.respondInvalidRequest(c)
		return
	}
	answer, err := h.actions.PostAnswer(c.Request.Context(), c.GetString(userIDContextKey), actions.PostAnswerInput{
		QuestionID: c.Param("id"),
		Text:       request.Text,
		Proof:      request.toProof(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newNoteResponse(answer))
}

func (h *httpHandler) handleAcceptAnswer(c *gin.Context) {
	var request acceptAnswerRequest
	if err := bindOptionalJSON(c, &request); err != nil {
		h.respondInvalidRequest(c)
		return
	}
	question, err := h.actions.AcceptAnswer(c.Request.Context(), c.GetString(userIDContextKey), actions.AcceptAnswerInput{
		QuestionID: c.Param("id"),
		AnswerID:   request.AnswerID,
		Proof:      request.toProof(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNoteResponse(question))
}

func (h *httpHandler) handleArchiveQuestion(c *gin.Context) {
	question, err := h.actions.ArchiveQuestion(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNoteResponse(question))
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	note, err := h.actions.GetNote(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNoteResponse(note))
}

func (h *httpHandler) handleEditNote(c *gin.Context) {
	var request editNoteRequest
	if err := bindOptionalJSON(c, &request); err != nil {
		h.respondInvalidRequest(c)
		return
	}
	note, err := h.actions.EditNote(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), request.Text)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNoteResponse(note))
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	if err := h.actions.DeleteNote(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleLikeNote(c *gin.Context) {
	var request proofPayload
	if err := bindOptionalJSON(c, &request); err != nil {
		h.respondInvalidRequest(c)
		return
	}
	state, err := h.actions.LikeNote(c.Request.Context(), c.GetString(userIDContextKey), actions.LikeInput{
		NoteID: c.Param("id"),
		Proof:  request.toProof(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, likeResponse{Liked: state.Liked, LikeCount: state.LikeCount})
}

func (h *httpHandler) handleUnlikeNote(c *gin.Context) {
	state, err := h.actions.UnlikeNote(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, likeResponse{Liked: state.Liked, LikeCount: state.LikeCount})
}

func (h *httpHandler) handleViewNote(c *gin.Context) {
	var request proofPayload
	if err := bindOptionalJSON(c, &request); err != nil {
		h.respondInvalidRequest(c)
		return
	}
	outcome, err := h.actions.ViewNote(c.Request.Context(), c.GetString(userIDContextKey), actions.ViewInput{
		NoteID: c.Param("id"),
		Proof:  request.toProof(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewResponse{Recorded: outcome.Recorded, ViewCount: outcome.ViewCount})
}
