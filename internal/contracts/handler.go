package contracts

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pactline/backend/internal/content"
	"github.com/pactline/backend/internal/middleware"
	"github.com/pactline/backend/internal/models"
	"github.com/pactline/backend/pkg/response"
)

// Generator drafts contract content from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt, locale string) (content.Content, error)
}

// Handler handles contract HTTP endpoints.
type Handler struct {
	svc       *Service
	generator Generator
	logger    *zap.Logger
}

// NewHandler creates a contracts handler. generator may be nil.
func NewHandler(svc *Service, generator Generator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, generator: generator, logger: logger}
}

// CreateRequest is the body for POST /contracts.
type CreateRequest struct {
	Title      string          `json:"title"`
	Content    content.Content `json:"content"`
	IsTemplate bool            `json:"is_template"`
}

// UpdateRequest is the body for PUT /contracts/:id.
type UpdateRequest struct {
	Content         content.Content `json:"content"`
	IsTemplate      *bool           `json:"is_template"`
	ExpectedVersion *int            `json:"expected_version"`
}

// GenerateRequest is the body for POST /contracts/generate.
type GenerateRequest struct {
	Prompt string `json:"prompt" binding:"required"`
	Locale string `json:"locale"`
	Save   bool   `json:"save"`
}

func operation(c *gin.Context) (models.OperationContext, bool) {
	op, ok := middleware.Operation(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
	}
	return op, ok
}

func contractID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid contract id")
		return uuid.Nil, false
	}
	return id, true
}

// List handles GET /contracts?template=true|false.
func (h *Handler) List(c *gin.Context) {
	op, ok := operation(c)
	if !ok {
		return
	}
	isTemplate, _ := strconv.ParseBool(c.DefaultQuery("template", "false"))
	list, err := h.svc.List(c.Request.Context(), op, isTemplate)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// Create handles POST /contracts.
func (h *Handler) Create(c *gin.Context) {
	op, ok := operation(c)
	if !ok {
		return
	}
	var body CreateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	contract, err := h.svc.Create(c.Request.Context(), op, strings.TrimSpace(body.Title), body.Content, body.IsTemplate)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, contract)
}

// Get handles GET /contracts/:id.
func (h *Handler) Get(c *gin.Context) {
	op, ok := operation(c)
	if !ok {
		return
	}
	id, ok := contractID(c)
	if !ok {
		return
	}
	d, err := h.svc.Get(c.Request.Context(), op, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, d)
}

// Update handles PUT /contracts/:id.
func (h *Handler) Update(c *gin.Context) {
	op, ok := operation(c)
	if !ok {
		return
	}
	id, ok := contractID(c)
	if !ok {
		return
	}
	var body UpdateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	contract, err := h.svc.Update(c.Request.Context(), op, id, UpdateInput{
		Content:         body.Content,
		IsTemplate:      body.IsTemplate,
		ExpectedVersion: body.ExpectedVersion,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, contract)
}

// Duplicate handles POST /contracts/:id/duplicate where :id is a template.
func (h *Handler) Duplicate(c *gin.Context) {
	op, ok := operation(c)
	if !ok {
		return
	}
	id, ok := contractID(c)
	if !ok {
		return
	}
	contract, err := h.svc.Duplicate(c.Request.Context(), op, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, contract)
}

// Revise handles POST /contracts/:id/revise.
func (h *Handler) Revise(c *gin.Context) {
	op, ok := operation(c)
	if !ok {
		return
	}
	id, ok := contractID(c)
	if !ok {
		return
	}
	contract, err := h.svc.Revise(c.Request.Context(), op, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, contract)
}

// Verify handles GET /contracts/:id/verify.
func (h *Handler) Verify(c *gin.Context) {
	op, ok := operation(c)
	if !ok {
		return
	}
	id, ok := contractID(c)
	if !ok {
		return
	}
	res, err := h.svc.Verify(c.Request.Context(), op, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, res)
}

// Certificate handles GET /contracts/:id/certificate.
func (h *Handler) Certificate(c *gin.Context) {
	op, ok := operation(c)
	if !ok {
		return
	}
	id, ok := contractID(c)
	if !ok {
		return
	}
	cert, err := h.svc.Certificate(c.Request.Context(), op, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, cert)
}

// Events handles GET /contracts/:id/events.
func (h *Handler) Events(c *gin.Context) {
	op, ok := operation(c)
	if !ok {
		return
	}
	id, ok := contractID(c)
	if !ok {
		return
	}
	events, err := h.svc.Events(c.Request.Context(), op, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, events)
}

// Generate handles POST /contracts/generate. Generated content is validated
// before it is returned or saved.
func (h *Handler) Generate(c *gin.Context) {
	op, ok := operation(c)
	if !ok {
		return
	}
	if h.generator == nil {
		response.ServiceUnavailable(c, "content generation is not configured")
		return
	}
	var body GenerateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	locale := body.Locale
	if locale == "" {
		locale = "en"
	}
	draft, err := h.generator.Generate(c.Request.Context(), body.Prompt, locale)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !body.Save {
		response.OK(c, draft)
		return
	}
	contract, err := h.svc.Create(c.Request.Context(), op, draft.Title, draft, false)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, contract)
}

func (h *Handler) fail(c *gin.Context, err error) {
	if code := response.StatusOf(err); code >= 500 {
		h.logger.Error("contracts request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	response.Error(c, err)
}
