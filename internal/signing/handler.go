package signing

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pactline/backend/internal/middleware"
	"github.com/pactline/backend/pkg/response"
)

// Handler handles the public signer endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a signing handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// ChallengeRequest is the body for POST /sign/:id/challenge.
type ChallengeRequest struct {
	Email      string `json:"email" binding:"required,email"`
	ReturnPath string `json:"return_path"`
}

// VerifyRequest is the body for POST /sign/verify.
type VerifyRequest struct {
	Token string `json:"token" binding:"required"`
}

// Challenge handles POST /sign/:id/challenge.
func (h *Handler) Challenge(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		// Same answer as an unknown contract.
		response.Error(c, ErrNotAuthorizedToSign)
		return
	}
	var body ChallengeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "a valid email is required")
		return
	}
	if err := h.svc.Challenge(c.Request.Context(), id, body.Email, body.ReturnPath); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"state": StateLinkIssued, "message": "a signing link has been sent to your email"})
}

// Verify handles POST /sign/verify.
func (h *Handler) Verify(c *gin.Context) {
	var body VerifyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "token required")
		return
	}
	session, err := h.svc.Consume(c.Request.Context(), body.Token)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, session)
}

// Session handles GET /sign/session for a signer session token.
func (h *Handler) Session(c *gin.Context) {
	claims, ok := middleware.SignerClaims(c)
	if !ok {
		response.Unauthorized(c, "missing signing session")
		return
	}
	view, err := h.svc.View(c.Request.Context(), claims.ContractID, claims.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, view)
}

func (h *Handler) fail(c *gin.Context, err error) {
	if response.StatusOf(err) >= 500 {
		h.logger.Error("signing request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	response.Error(c, err)
}
