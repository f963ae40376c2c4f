package workflow

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/models"
	"github.com/pactline/backend/pkg/utils"
)

// MaxSignersPerRequest bounds one signature request call.
const MaxSignersPerRequest = 50

// OpenFunc checks and applies the status change on a locked contract.
type OpenFunc func(c *models.Contract) (*models.ContractEvent, error)

// Store is the persistence RequestSignatures needs.
type Store interface {
	// OpenForSignature locks the scoped contract, runs fn, inserts requests for
	// emails idempotently and returns the emails that were newly added.
	OpenForSignature(ctx context.Context, orgID, id uuid.UUID, emails []string, fn OpenFunc) (*models.Contract, []string, error)
}

// Notifier fans out a contract change to caches and live subscribers.
type Notifier interface {
	ContractChanged(ctx context.Context, c *models.Contract)
}

// Challenger sends a signing link to an invited email.
type Challenger interface {
	Challenge(ctx context.Context, contractID uuid.UUID, email, returnPath string) error
}

// RequestInput is the payload of RequestSignatures.
type RequestInput struct {
	Emails     []string
	Notify     bool
	ReturnPath string
}

// RequestResult reports what a signature request changed.
type RequestResult struct {
	Contract *models.Contract `json:"contract"`
	Added    []string         `json:"added"`
	Notified []string         `json:"notified"`
}

// Service orchestrates signature requests.
type Service struct {
	store      Store
	notifier   Notifier
	challenger Challenger
	logger     *zap.Logger
}

// NewService creates a workflow service. notifier and challenger may be nil.
func NewService(store Store, notifier Notifier, challenger Challenger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, notifier: notifier, challenger: challenger, logger: logger}
}

// NormalizeEmails lower-cases, validates and de-duplicates emails, sorted.
func NormalizeEmails(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		e, ok := utils.NormalizeEmail(r)
		if !ok {
			return nil, apperr.Validation("invalid signer email %q", r)
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sort.Strings(out)
	return out, nil
}

// RequestSignatures invites signers and moves the contract to pending.
// Re-inviting an existing signer is a no-op.
func (s *Service) RequestSignatures(ctx context.Context, op models.OperationContext, contractID uuid.UUID, in RequestInput) (*RequestResult, error) {
	if op.ActorID == uuid.Nil || !op.HasOrganization() {
		return nil, apperr.New(apperr.ErrUnauthorized, "an organization is required for this operation")
	}
	emails, err := NormalizeEmails(in.Emails)
	if err != nil {
		return nil, err
	}
	if len(emails) == 0 {
		return nil, apperr.Validation("at least one signer email is required")
	}
	if len(emails) > MaxSignersPerRequest {
		return nil, apperr.Validation("too many signers (max %d)", MaxSignersPerRequest)
	}

	actor := op.ActorEmail
	if actor == "" {
		actor = op.ActorID.String()
	}
	c, added, err := s.store.OpenForSignature(ctx, op.OrganizationID, contractID, emails, func(c *models.Contract) (*models.ContractEvent, error) {
		if c.IsTemplate {
			return nil, apperr.Conflict("templates cannot be sent for signature")
		}
		from := c.Status
		if err := Transition(c, models.StatusPending); err != nil {
			return nil, err
		}
		return &models.ContractEvent{ContractID: c.ID, Type: models.EventSignaturesRequested, Actor: actor, Payload: map[string]any{
			"emails": emails, "from": from, "to": c.Status, "version": c.Version,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.ContractChanged(ctx, c)
	}
	s.logger.Info("signatures requested",
		zap.String("contract_id", c.ID.String()),
		zap.String("status", string(c.Status)),
		zap.Int("added", len(added)),
	)

	res := &RequestResult{Contract: c, Added: added, Notified: []string{}}
	if in.Notify && s.challenger != nil {
		for _, e := range added {
			if err := s.challenger.Challenge(ctx, c.ID, e, in.ReturnPath); err != nil {
				s.logger.Warn("send signing link failed", zap.String("contract_id", c.ID.String()), zap.Error(err))
				continue
			}
			res.Notified = append(res.Notified, e)
		}
	}
	return res, nil
}
