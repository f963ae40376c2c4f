package workflow

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pactline/backend/internal/middleware"
	"github.com/pactline/backend/pkg/response"
)

// Handler handles signature request endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a workflow handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// SignatureRequestBody is the body for POST /contracts/:id/signature-requests.
type SignatureRequestBody struct {
	Emails     []string `json:"emails" binding:"required,min=1,dive,email"`
	Notify     bool     `json:"notify"`
	ReturnPath string   `json:"return_path"`
}

// RequestSignatures handles POST /contracts/:id/signature-requests.
func (h *Handler) RequestSignatures(c *gin.Context) {
	op, ok := middleware.Operation(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid contract id")
		return
	}
	var body SignatureRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.svc.RequestSignatures(c.Request.Context(), op, id, RequestInput{
		Emails:     body.Emails,
		Notify:     body.Notify,
		ReturnPath: body.ReturnPath,
	})
	if err != nil {
		if response.StatusOf(err) >= 500 {
			h.logger.Error("request signatures", zap.String("contract_id", id.String()), zap.Error(err))
		}
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}
