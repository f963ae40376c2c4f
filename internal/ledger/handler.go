package ledger

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/middleware"
	"github.com/pactline/backend/internal/models"
	"github.com/pactline/backend/pkg/response"
)

// Handler exposes the signature submission endpoint.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a ledger handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// SignRequest is the body for POST /sign/signature.
type SignRequest struct {
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	PhoneNumber string  `json:"phone_number"`
	DateOfBirth string  `json:"date_of_birth"`
	NationalID  *string `json:"national_id"`
	Address     string  `json:"address"`
	PostalCode  string  `json:"postal_code"`
	City        string  `json:"city"`
	// Image is base64, optionally as a data URL.
	Image string `json:"signature_image" binding:"required"`
}

func (r SignRequest) details() (models.SignerDetails, error) {
	d := models.SignerDetails{
		FirstName:   strings.TrimSpace(r.FirstName),
		LastName:    strings.TrimSpace(r.LastName),
		PhoneNumber: strings.TrimSpace(r.PhoneNumber),
		NationalID:  r.NationalID,
		Address:     strings.TrimSpace(r.Address),
		PostalCode:  strings.TrimSpace(r.PostalCode),
		City:        strings.TrimSpace(r.City),
	}
	if r.DateOfBirth != "" {
		t, err := time.Parse("2006-01-02", r.DateOfBirth)
		if err != nil {
			return d, apperr.Validation("date_of_birth must be YYYY-MM-DD")
		}
		d.DateOfBirth = &t
	}
	return d, nil
}

// DecodeImage accepts raw base64 or a data URL.
func DecodeImage(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, apperr.Validation("malformed data URL")
		}
		s = s[i+1:]
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, apperr.Validation("signature_image is not valid base64")
	}
	return b, nil
}

// Sign handles POST /sign/signature for the signer in the session token.
func (h *Handler) Sign(c *gin.Context) {
	claims, ok := middleware.SignerClaims(c)
	if !ok {
		response.Unauthorized(c, "missing signing session")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.svc.MaxBodyBytes())
	var body SignRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.PayloadTooLarge(c, "signature submission is too large")
			return
		}
		response.BadRequest(c, "signature_image is required")
		return
	}
	details, err := body.details()
	if err != nil {
		response.Error(c, err)
		return
	}
	image, err := DecodeImage(body.Image)
	if err != nil {
		response.Error(c, err)
		return
	}
	sig, err := h.svc.Record(c.Request.Context(), Signer{ContractID: claims.ContractID, Email: claims.Email}, details, image)
	if err != nil {
		if response.StatusOf(err) >= 500 {
			h.logger.Error("record signature", zap.String("contract_id", claims.ContractID.String()), zap.Error(err))
		}
		response.Error(c, err)
		return
	}
	response.Created(c, sig.View())
}
