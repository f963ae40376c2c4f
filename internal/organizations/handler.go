package organizations

import (
	"github.com/gin-gonic/gin"

	"github.com/pactline/backend/internal/middleware"
	"github.com/pactline/backend/pkg/response"
)

// Handler handles organization HTTP endpoints.
type Handler struct {
	gate *Gate
}

// NewHandler creates an organizations handler.
func NewHandler(gate *Gate) *Handler {
	return &Handler{gate: gate}
}

// Me handles GET /organizations/me.
func (h *Handler) Me(c *gin.Context) {
	op, ok := middleware.Operation(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	org, err := h.gate.Current(c.Request.Context(), op)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, org)
}
