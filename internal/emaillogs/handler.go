package emaillogs

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pactline/backend/internal/middleware"
	"github.com/pactline/backend/internal/models"
	"github.com/pactline/backend/pkg/response"
)

// Lister reads delivery logs.
type Lister interface {
	ListByContract(ctx context.Context, contractID uuid.UUID) ([]*models.EmailLog, error)
}

// AccessChecker confirms the caller may see a contract. It must return a
// not-found error for contracts outside the caller's organization.
type AccessChecker interface {
	Get(ctx context.Context, op models.OperationContext, id uuid.UUID) (*models.ContractDetail, error)
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	logs   Lister
	access AccessChecker
	logger *zap.Logger
}

// NewHandler creates an email logs handler.
func NewHandler(logs Lister, access AccessChecker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logs: logs, access: access, logger: logger}
}

// ListByContract handles GET /contracts/:id/emails.
func (h *Handler) ListByContract(c *gin.Context) {
	op, ok := middleware.Operation(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	contractID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid contract id")
		return
	}
	if _, err := h.access.Get(c.Request.Context(), op, contractID); err != nil {
		response.Error(c, err)
		return
	}
	logs, err := h.logs.ListByContract(c.Request.Context(), contractID)
	if err != nil {
		h.logger.Error("list email logs", zap.String("contract_id", contractID.String()), zap.Error(err))
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, logs)
}
