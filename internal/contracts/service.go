// Package contracts is the contract version store: structured content with a
// monotonically increasing version and the fingerprint of the current content.
package contracts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/content"
	"github.com/pactline/backend/internal/fingerprint"
	"github.com/pactline/backend/internal/models"
)

// ErrNotEditable is returned for content writes once signature collection has begun.
var ErrNotEditable = apperr.New(apperr.ErrConflict, "contract is no longer a draft; create a revision to edit it")

// MutateFunc modifies a locked contract in place and returns the audit event
// to record with the write, if any.
type MutateFunc func(c *models.Contract) (*models.ContractEvent, error)

// Store is the persistence the service needs.
type Store interface {
	Create(ctx context.Context, c *models.Contract, events ...models.ContractEvent) error
	Get(ctx context.Context, orgID, id uuid.UUID) (*models.Contract, error)
	GetTemplate(ctx context.Context, orgID, id uuid.UUID) (*models.Contract, error)
	List(ctx context.Context, orgID uuid.UUID, isTemplate bool) ([]models.ContractSummary, error)
	Mutate(ctx context.Context, orgID, id uuid.UUID, fn MutateFunc) (*models.Contract, error)
	Detail(ctx context.Context, orgID, id uuid.UUID) (*models.ContractDetail, error)
	Events(ctx context.Context, orgID, id uuid.UUID) ([]models.ContractEvent, error)
	AppendEvent(ctx context.Context, ev models.ContractEvent) error
}

// ViewCache caches assembled contract details per organization.
type ViewCache interface {
	Get(ctx context.Context, orgID, id uuid.UUID) (*models.ContractDetail, bool)
	Set(ctx context.Context, orgID uuid.UUID, d *models.ContractDetail)
}

// Notifier fans out a contract change to caches and live subscribers.
type Notifier interface {
	ContractChanged(ctx context.Context, c *models.Contract)
}

// UpdateInput is the payload of Update.
type UpdateInput struct {
	Content         content.Content
	IsTemplate      *bool
	ExpectedVersion *int
}

// VerifyResult reports a fingerprint re-check.
type VerifyResult struct {
	ContractID   uuid.UUID          `json:"contract_id"`
	Version      int                `json:"version"`
	StoredHash   fingerprint.Digest `json:"stored_hash"`
	ComputedHash fingerprint.Digest `json:"computed_hash"`
	Valid        bool               `json:"valid"`
}

// Certificate is the read-only projection handed to the PDF renderer.
type Certificate struct {
	Contract    models.Contract           `json:"contract"`
	Fingerprint fingerprint.Digest        `json:"fingerprint"`
	Verified    bool                      `json:"verified"`
	Complete    bool                      `json:"complete"`
	Requests    []models.SignatureRequest `json:"signature_requests"`
	Signatures  []models.SignatureView    `json:"signatures"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

// Service implements the contract version store operations.
type Service struct {
	store    Store
	cache    ViewCache
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a contracts service. cache and notifier may be nil.
func NewService(store Store, cache ViewCache, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, cache: cache, notifier: notifier, logger: logger, now: time.Now}
}

func actor(op models.OperationContext) string {
	if op.ActorEmail != "" {
		return op.ActorEmail
	}
	return op.ActorID.String()
}

func requireOrg(op models.OperationContext) error {
	if op.ActorID == uuid.Nil || !op.HasOrganization() {
		return apperr.New(apperr.ErrUnauthorized, "an organization is required for this operation")
	}
	return nil
}

// Create stores a new draft at version 1.
func (s *Service) Create(ctx context.Context, op models.OperationContext, title string, body content.Content, isTemplate bool) (*models.Contract, error) {
	if err := requireOrg(op); err != nil {
		return nil, err
	}
	if err := content.Validate(body); err != nil {
		return nil, err
	}
	if title == "" {
		title = body.Title
	}
	orgID, actorID := op.OrganizationID, op.ActorID
	c := &models.Contract{
		ID:             uuid.New(),
		OrganizationID: &orgID,
		CreatedBy:      &actorID,
		Title:          title,
		Content:        body.Clone(),
		CurrentHash:    fingerprint.Of(body),
		Status:         models.StatusDraft,
		Version:        models.InitialVersion,
		IsTemplate:     isTemplate,
	}
	ev := models.ContractEvent{ContractID: c.ID, Type: models.EventCreated, Actor: actor(op), Payload: map[string]any{
		"version": c.Version, "hash": c.CurrentHash, "is_template": isTemplate,
	}}
	if err := s.store.Create(ctx, c, ev); err != nil {
		return nil, err
	}
	s.logger.Info("contract created",
		zap.String("contract_id", c.ID.String()),
		zap.String("organization_id", orgID.String()),
		zap.Int("version", c.Version),
	)
	return c, nil
}

// Update replaces the content of a draft, bumping the version by one and
// recomputing the fingerprint in the same write.
func (s *Service) Update(ctx context.Context, op models.OperationContext, id uuid.UUID, in UpdateInput) (*models.Contract, error) {
	if err := requireOrg(op); err != nil {
		return nil, err
	}
	if err := content.Validate(in.Content); err != nil {
		return nil, err
	}
	body := in.Content.Clone()
	digest := fingerprint.Of(body)

	c, err := s.store.Mutate(ctx, op.OrganizationID, id, func(c *models.Contract) (*models.ContractEvent, error) {
		if c.Status != models.StatusDraft {
			return nil, ErrNotEditable
		}
		if in.ExpectedVersion != nil && *in.ExpectedVersion != c.Version {
			return nil, apperr.Conflict("expected version %d, current version is %d", *in.ExpectedVersion, c.Version)
		}
		c.Content = body
		c.Title = body.Title
		c.CurrentHash = digest
		c.Version++
		if in.IsTemplate != nil {
			c.IsTemplate = *in.IsTemplate
		}
		return &models.ContractEvent{ContractID: c.ID, Type: models.EventUpdated, Actor: actor(op), Payload: map[string]any{
			"version": c.Version, "hash": c.CurrentHash,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, c)
	s.logger.Info("contract updated", zap.String("contract_id", c.ID.String()), zap.Int("version", c.Version))
	return c, nil
}

// Get returns the scoped contract with requests and signatures.
func (s *Service) Get(ctx context.Context, op models.OperationContext, id uuid.UUID) (*models.ContractDetail, error) {
	if !op.HasOrganization() {
		return nil, apperr.ErrNotFound
	}
	if s.cache != nil {
		if d, ok := s.cache.Get(ctx, op.OrganizationID, id); ok {
			return d, nil
		}
	}
	d, err := s.store.Detail(ctx, op.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, op.OrganizationID, d)
	}
	return d, nil
}

// List returns the caller's contracts, or for templates the system-wide ones
// plus the caller's own.
func (s *Service) List(ctx context.Context, op models.OperationContext, isTemplate bool) ([]models.ContractSummary, error) {
	if !op.HasOrganization() && !isTemplate {
		return []models.ContractSummary{}, nil
	}
	return s.store.List(ctx, op.OrganizationID, isTemplate)
}

// Duplicate copies an accessible template into a new draft owned by the caller.
func (s *Service) Duplicate(ctx context.Context, op models.OperationContext, templateID uuid.UUID) (*models.Contract, error) {
	if err := requireOrg(op); err != nil {
		return nil, err
	}
	tpl, err := s.store.GetTemplate(ctx, op.OrganizationID, templateID)
	if err != nil {
		return nil, err
	}
	if err := fingerprint.Verify(tpl.Content, tpl.CurrentHash); err != nil {
		s.integrityFailure(ctx, tpl, err)
		return nil, err
	}
	c, err := s.copyAs(ctx, op, tpl, nil, models.EventDuplicated)
	if err != nil {
		return nil, err
	}
	s.logger.Info("contract duplicated", zap.String("contract_id", c.ID.String()), zap.String("template_id", tpl.ID.String()))
	return c, nil
}

// Revise starts a new draft from a contract that has left draft. The original
// and its signatures are left untouched.
func (s *Service) Revise(ctx context.Context, op models.OperationContext, id uuid.UUID) (*models.Contract, error) {
	if err := requireOrg(op); err != nil {
		return nil, err
	}
	orig, err := s.store.Get(ctx, op.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	if orig.Status == models.StatusDraft {
		return nil, apperr.Conflict("contract is still a draft; edit it directly")
	}
	if err := fingerprint.Verify(orig.Content, orig.CurrentHash); err != nil {
		s.integrityFailure(ctx, orig, err)
		return nil, err
	}
	c, err := s.copyAs(ctx, op, orig, &orig.ID, models.EventRevised)
	if err != nil {
		return nil, err
	}
	s.logger.Info("contract revised", zap.String("contract_id", c.ID.String()), zap.String("revision_of", orig.ID.String()))
	return c, nil
}

func (s *Service) copyAs(ctx context.Context, op models.OperationContext, src *models.Contract, revisionOf *uuid.UUID, eventType string) (*models.Contract, error) {
	orgID, actorID := op.OrganizationID, op.ActorID
	body := src.Content.Clone()
	c := &models.Contract{
		ID:             uuid.New(),
		OrganizationID: &orgID,
		CreatedBy:      &actorID,
		Title:          src.Title,
		Content:        body,
		CurrentHash:    fingerprint.Of(body),
		Status:         models.StatusDraft,
		Version:        models.InitialVersion,
		IsTemplate:     false,
		RevisionOf:     revisionOf,
	}
	events := []models.ContractEvent{{ContractID: c.ID, Type: eventType, Actor: actor(op), Payload: map[string]any{
		"source_id": src.ID.String(), "source_version": src.Version, "hash": c.CurrentHash,
	}}}
	if revisionOf != nil {
		events = append(events, models.ContractEvent{ContractID: src.ID, Type: models.EventRevised, Actor: actor(op), Payload: map[string]any{
			"revision_id": c.ID.String(),
		}})
	}
	if err := s.store.Create(ctx, c, events...); err != nil {
		return nil, err
	}
	return c, nil
}

// Verify re-hashes the stored content and compares it with the stored digest.
func (s *Service) Verify(ctx context.Context, op models.OperationContext, id uuid.UUID) (*VerifyResult, error) {
	if !op.HasOrganization() {
		return nil, apperr.ErrNotFound
	}
	c, err := s.store.Get(ctx, op.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	res := &VerifyResult{
		ContractID:   c.ID,
		Version:      c.Version,
		StoredHash:   c.CurrentHash,
		ComputedHash: fingerprint.Of(c.Content),
	}
	res.Valid = res.StoredHash == res.ComputedHash
	if !res.Valid {
		err := fingerprint.Verify(c.Content, c.CurrentHash)
		s.integrityFailure(ctx, c, err)
		return res, err
	}
	return res, nil
}

// Certificate assembles the signing record of a contract. It refuses to
// project content whose fingerprint no longer matches.
func (s *Service) Certificate(ctx context.Context, op models.OperationContext, id uuid.UUID) (*Certificate, error) {
	if !op.HasOrganization() {
		return nil, apperr.ErrNotFound
	}
	d, err := s.store.Detail(ctx, op.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	if err := fingerprint.Verify(d.Content, d.CurrentHash); err != nil {
		s.integrityFailure(ctx, &d.Contract, err)
		return nil, err
	}
	return &Certificate{
		Contract:    d.Contract,
		Fingerprint: d.CurrentHash,
		Verified:    true,
		Complete:    d.Status == models.StatusSigned,
		Requests:    d.Requests,
		Signatures:  d.Signatures,
		GeneratedAt: s.now().UTC(),
	}, nil
}

// Events returns the audit trail of a scoped contract.
func (s *Service) Events(ctx context.Context, op models.OperationContext, id uuid.UUID) ([]models.ContractEvent, error) {
	if !op.HasOrganization() {
		return nil, apperr.ErrNotFound
	}
	return s.store.Events(ctx, op.OrganizationID, id)
}

func (s *Service) notify(ctx context.Context, c *models.Contract) {
	if s.notifier != nil {
		s.notifier.ContractChanged(ctx, c)
	}
}

func (s *Service) integrityFailure(ctx context.Context, c *models.Contract, err error) {
	s.logger.Error("contract integrity violation",
		zap.String("contract_id", c.ID.String()),
		zap.Int("version", c.Version),
		zap.String("stored_hash", string(c.CurrentHash)),
		zap.Error(err),
	)
	if c.OrganizationID == nil {
		return
	}
	ev := models.ContractEvent{ContractID: c.ID, Type: models.EventIntegrityFailed, Actor: "system", Payload: map[string]any{
		"version": c.Version, "stored_hash": c.CurrentHash,
	}}
	if aerr := s.store.AppendEvent(ctx, ev); aerr != nil && !errors.Is(aerr, context.Canceled) {
		s.logger.Warn("record integrity event", zap.Error(aerr))
	}
}
