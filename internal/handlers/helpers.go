package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/palmerwenzel/chat-genius-sub000/internal/middleware"
	"github.com/palmerwenzel/chat-genius-sub000/internal/observability"
	"github.com/palmerwenzel/chat-genius-sub000/internal/ratelimit"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// mustUserID aborts with 401 when no authenticated user is on the context.
func mustUserID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return uuid.Nil, false
	}
	return id, true
}

// parseOptionalUUID parses a nullable uuid field from a request body.
func parseOptionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// pathUUID parses a uuid path parameter, aborting with 400 on failure.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// enforceLimit runs one rate-limit check, writes the X-RateLimit headers
// and aborts with 429 when the bucket is exhausted.
func enforceLimit(c *gin.Context, limiter *ratelimit.Limiter, userID uuid.UUID, resource, action string) bool {
	result := limiter.Check(c.Request.Context(), userID, resource, action)
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	if result.Remaining <= 0 {
		observability.IncRateLimitRejection(resource, action)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":    "rate limit exceeded",
			"reset_at": result.Reset,
		})
		return false
	}
	return true
}
