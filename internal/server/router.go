// Package server exposes the question and answer actions over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/actions"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/ratelimit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey         = "humanqa_wallet_address"
	defaultRateLimit         = 20
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingIdentityResolver = errors.New("identity resolver dependency required")
	errMissingActionsService   = errors.New("actions service dependency required")
)

// SessionValidator authenticates an incoming request.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// IdentityResolver maps validated session claims onto the canonical caller id.
type IdentityResolver interface {
	ResolveWalletAddress(ctx context.Context, claims auth.SessionClaims) (string, error)
}

// Dependencies wires the HTTP handler collaborators. Limiter and Realtime are optional.
type Dependencies struct {
	SessionValidator  SessionValidator
	Identities        IdentityResolver
	Actions           *actions.Service
	Realtime          *RealtimeDispatcher
	Limiter           ratelimit.Limiter
	RateLimit         int
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// NewHTTPHandler builds the gin router serving the API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Identities == nil {
		return nil, errMissingIdentityResolver
	}
	if deps.Actions == nil {
		return nil, errMissingActionsService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rateLimit := deps.RateLimit
	if rateLimit <= 0 {
		rateLimit = defaultRateLimit
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:   deps.SessionValidator,
		identities: deps.Identities,
		actions:    deps.Actions,
		realtime:   deps.Realtime,
		limiter:    deps.Limiter,
		rateLimit:  rateLimit,
		heartbeat:  heartbeat,
		logger:     logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/notes/:id", handler.handleGetNote)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/signals/:action", handler.handleSignalPreview)
	protected.POST("/questions", handler.throttleProofAttempts, handler.handlePostQuestion)
	protected.POST("/questions/:id/answers", handler.throttleProofAttempts, handler.handlePostAnswer)
	protected.POST("/questions/:id/accept", handler.throttleProofAttempts, handler.handleAcceptAnswer)
	protected.POST("/questions/:id/archive", handler.handleArchiveQuestion)
	protected.PATCH("/notes/:id", handler.handleEditNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)
	protected.POST("/notes/:id/like", handler.throttleProofAttempts, handler.handleLikeNote)
	protected.DELETE("/notes/:id/like", handler.handleUnlikeNote)
	if deps.Actions.ViewPolicy() == actions.ViewPolicyProof {
		protected.POST("/notes/:id/view", handler.throttleProofAttempts, handler.handleViewNote)
	} else {
		protected.POST("/notes/:id/view", handler.handleViewNote)
	}
	if deps.Realtime != nil {
		protected.GET("/events", handler.handleEvents)
	}

	return router, nil
}

type httpHandler struct {
	sessions   SessionValidator
	identities IdentityResolver
	actions    *actions.Service
	realtime   *RealtimeDispatcher
	limiter    ratelimit.Limiter
	rateLimit  int
	heartbeat  time.Duration
	logger     *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	allowAll := len(allowedOrigins) == 0
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
			break
		}
		origins = append(origins, origin)
	}
	if allowAll {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": actions.CodeUnauthenticated})
		return
	}
	userID, err := h.identities.ResolveWalletAddress(c.Request.Context(), claims)
	if err != nil {
		h.logger.Warn("wallet resolution failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": actions.CodeUnauthenticated})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

// throttleProofAttempts counts each proof-gated attempt against the caller's window
// before the oracle is contacted.
func (h *httpHandler) throttleProofAttempts(c *gin.Context) {
	if h.limiter == nil {
		c.Next()
		return
	}
	userID := c.GetString(userIDContextKey)
	decision := h.limiter.Allow(c.Request.Context(), userID, h.rateLimit)
	c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if !decision.Allowed {
		retryAfter := int(time.Until(decision.ResetAt).Round(time.Second) / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		h.logger.Info("proof attempt throttled", zap.String("user_id", userID), zap.String("path", c.FullPath()))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
		return
	}
	c.Next()
}
