package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kurasuta/kurasuta-backend/internal/logger"
	"github.com/kurasuta/kurasuta-backend/internal/repos"
)

type APIKeyMiddleware struct {
	log        *logger.Logger
	apiKeyRepo repos.APIKeyRepo
}

func NewAPIKeyMiddleware(log *logger.Logger, apiKeyRepo repos.APIKeyRepo) *APIKeyMiddleware {
	return &APIKeyMiddleware{
		log:        log.With("middleware", "APIKeyMiddleware"),
		apiKeyRepo: apiKeyRepo,
	}
}

// RequireKey gates every worker-facing route behind the api_key table. The
// key format is checked before the lookup so junk never reaches the store.
func (m *APIKeyMiddleware) RequireKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-Api-Key")
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing API key"})
			return
		}
		if _, err := uuid.Parse(key); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid API key format"})
			return
		}
		exists, err := m.apiKeyRepo.Exists(c.Request.Context(), nil, key)
		if err != nil {
			m.log.Error("API key lookup failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
			return
		}
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unknown API key"})
			return
		}
		c.Next()
	}
}

// RequestID tags each request for log correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-Id", id)
		c.Next()
	}
}
