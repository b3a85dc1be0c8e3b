package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/actions"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/humanity"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	codeInvalidRequest = "invalid_request"
	codeServerError    = "server_error"
)

func statusForError(serviceErr *actions.ServiceError) int {
	switch serviceErr.Kind() {
	case actions.KindUnauthenticated:
		return http.StatusUnauthorized
	case actions.KindBadRequest:
		return http.StatusBadRequest
	case actions.KindForbidden:
		return http.StatusForbidden
	case actions.KindNotFound:
		return http.StatusNotFound
	case actions.KindGone:
		return http.StatusGone
	case actions.KindVerificationFailed:
		if serviceErr.Detail() == string(humanity.FailureLimitExhausted) {
			return http.StatusTooManyRequests
		}
		return http.StatusForbidden
	case actions.KindReplayDetected, actions.KindConflict:
		return http.StatusConflict
	default:
		switch serviceErr.Code() {
		case actions.CodeVerifierTimeout, actions.CodeVerifierUnavailable:
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	serviceErr, ok := actions.AsServiceError(err)
	if !ok {
		h.logger.Error("unclassified action failure", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": codeServerError})
		return
	}

	status := statusForError(serviceErr)
	fields := []zap.Field{
		zap.String("operation", serviceErr.Operation()),
		zap.String("code", serviceErr.Code()),
		zap.Int("status", status),
	}
	switch {
	case status >= http.StatusInternalServerError:
		h.logger.Error("action failed", append(fields, zap.Error(err))...)
	case serviceErr.Kind() == actions.KindVerificationFailed:
		h.logger.Warn("proof verification failed", append(fields, zap.String("detail", serviceErr.Detail()))...)
	case serviceErr.Kind() == actions.KindReplayDetected:
		h.logger.Info("proof replay rejected", fields...)
	}

	body := gin.H{"error": serviceErr.Code()}
	if detail := serviceErr.Detail(); detail != "" {
		body["detail"] = detail
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *httpHandler) respondInvalidRequest(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": codeInvalidRequest})
}
