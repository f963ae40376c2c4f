package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pactline/backend/internal/models"
	"github.com/pactline/backend/pkg/response"
)

// ContextOperation is the key for the resolved OperationContext in gin context.
const ContextOperation = "operation_context"

// ScopeResolver maps an authenticated user to an OperationContext.
type ScopeResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID, email string) (models.OperationContext, error)
}

// Scope resolves the caller's organization once per request. Call after JWT.
func Scope(resolver ScopeResolver, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		userID, ok := c.Get(ContextUserID)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		id, _ := userID.(uuid.UUID)
		email := c.GetString(ContextUserEmail)
		op, err := resolver.Resolve(c.Request.Context(), id, email)
		if err != nil {
			logger.Error("resolve scope", zap.String("user_id", id.String()), zap.Error(err))
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextOperation, op)
		c.Next()
	}
}

// Operation returns the OperationContext set by Scope.
func Operation(c *gin.Context) (models.OperationContext, bool) {
	v, ok := c.Get(ContextOperation)
	if !ok {
		return models.OperationContext{}, false
	}
	op, ok := v.(models.OperationContext)
	return op, ok
}
