// Package ledger records signatures. Entries are append-only and bound to the
// contract version and fingerprint in force at the moment of signing.
package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/fingerprint"
	"github.com/pactline/backend/internal/models"
	"github.com/pactline/backend/internal/workflow"
	"github.com/pactline/backend/pkg/queue"
	"github.com/pactline/backend/pkg/utils"
)

// DefaultMaxImageBytes bounds an uploaded signature image.
const DefaultMaxImageBytes = 2 << 20

// formOverheadBytes covers the signer detail fields and data URL prefix
// around the base64 image in a submission body.
const formOverheadBytes = 64 << 10

var (
	// ErrAlreadySigned is returned for a second signature by the same email.
	ErrAlreadySigned = apperr.New(apperr.ErrConflict, "already signed")
	// ErrNotOpen is returned when the contract is not collecting signatures.
	ErrNotOpen = apperr.New(apperr.ErrConflict, "contract is not open for signature")
)

// AppendFunc inspects the locked contract state and returns the signature to
// insert plus audit events. It may change snap.Contract.Status.
type AppendFunc func(snap *workflow.Snapshot) (*models.Signature, []models.ContractEvent, error)

// Store is the persistence the ledger needs.
type Store interface {
	// Append locks the contract, builds a snapshot with the requested and
	// already-signed emails, runs fn and persists its result atomically.
	// A unique violation on (contract_id, signer_email) yields ErrAlreadySigned.
	Append(ctx context.Context, contractID uuid.UUID, fn AppendFunc) (*models.Signature, *models.Contract, error)
}

// Authorizer re-checks a signer's entitlement.
type Authorizer interface {
	Authorize(ctx context.Context, contractID uuid.UUID, email string) error
}

// Notifier fans out a contract change.
type Notifier interface {
	ContractChanged(ctx context.Context, c *models.Contract)
}

// Archiver queues the off-site copy of a signature image.
type Archiver interface {
	EnqueueSignatureArchive(ctx context.Context, payload queue.SignatureArchivePayload) error
}

// Signer identifies an authenticated signer session.
type Signer struct {
	ContractID uuid.UUID
	Email      string
}

// Service implements the signature ledger.
type Service struct {
	store         Store
	authorizer    Authorizer
	machine       *workflow.Machine
	notifier      Notifier
	archiver      Archiver
	maxImageBytes int
	logger        *zap.Logger
	now           func() time.Time
}

// NewService creates a ledger service. notifier and archiver may be nil.
func NewService(store Store, authorizer Authorizer, machine *workflow.Machine, notifier Notifier, archiver Archiver, maxImageBytes int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	return &Service{
		store:         store,
		authorizer:    authorizer,
		machine:       machine,
		notifier:      notifier,
		archiver:      archiver,
		maxImageBytes: maxImageBytes,
		logger:        logger,
		now:           time.Now,
	}
}

// MaxBodyBytes is the largest submission body that can carry an image within the limit.
func (s *Service) MaxBodyBytes() int64 {
	return int64(base64.StdEncoding.EncodedLen(s.maxImageBytes)) + formOverheadBytes
}

// ValidateDetails checks the mandatory signer fields.
func ValidateDetails(d models.SignerDetails) error {
	required := []struct{ name, value string }{
		{"first_name", d.FirstName},
		{"last_name", d.LastName},
		{"phone_number", d.PhoneNumber},
		{"address", d.Address},
		{"postal_code", d.PostalCode},
		{"city", d.City},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return apperr.Validation("%s is required", f.name)
		}
	}
	return nil
}

// DetectImage returns the content type of a PNG or JPEG signature image.
func DetectImage(image []byte, maxBytes int) (string, error) {
	if len(image) == 0 {
		return "", apperr.Validation("signature image is required")
	}
	if len(image) > maxBytes {
		return "", apperr.Validation("signature image exceeds %d bytes", maxBytes)
	}
	switch ct := http.DetectContentType(image); ct {
	case "image/png", "image/jpeg":
		return ct, nil
	default:
		return "", apperr.Validation("signature image must be PNG or JPEG, got %s", ct)
	}
}

// Record appends the signer's signature against the contract's current
// version and fingerprint, then lets the workflow re-evaluate status.
func (s *Service) Record(ctx context.Context, signer Signer, details models.SignerDetails, image []byte) (*models.Signature, error) {
	email, ok := utils.NormalizeEmail(signer.Email)
	if !ok {
		return nil, apperr.New(apperr.ErrUnauthorized, "not authorized to sign this contract")
	}
	if err := s.authorizer.Authorize(ctx, signer.ContractID, email); err != nil {
		return nil, err
	}
	if err := ValidateDetails(details); err != nil {
		return nil, err
	}
	contentType, err := DetectImage(image, s.maxImageBytes)
	if err != nil {
		return nil, err
	}

	sig, c, err := s.store.Append(ctx, signer.ContractID, func(snap *workflow.Snapshot) (*models.Signature, []models.ContractEvent, error) {
		c := snap.Contract
		if c.Status != models.StatusPending && c.Status != models.StatusSigned {
			return nil, nil, ErrNotOpen
		}
		if err := fingerprint.Verify(c.Content, c.CurrentHash); err != nil {
			return nil, nil, err
		}
		for _, e := range snap.Signed {
			if e == email {
				return nil, nil, ErrAlreadySigned
			}
		}
		sig := &models.Signature{
			ID:               uuid.New(),
			ContractID:       c.ID,
			SignerEmail:      email,
			Details:          details,
			Image:            image,
			ImageContentType: contentType,
			SignedAt:         s.now().UTC(),
			VersionSigned:    c.Version,
			ContentHash:      c.CurrentHash,
		}
		snap.Signed = append(snap.Signed, email)
		from := c.Status
		to := s.machine.OnSignatureRecorded(*snap)

		events := []models.ContractEvent{{ContractID: c.ID, Type: models.EventSigned, Actor: email, Payload: map[string]any{
			"signature_id": sig.ID.String(), "version_signed": sig.VersionSigned, "content_hash": sig.ContentHash,
		}}}
		if to != from {
			if err := workflow.Transition(c, to); err != nil {
				return nil, nil, err
			}
			events = append(events, models.ContractEvent{ContractID: c.ID, Type: models.EventStatusChanged, Actor: "system", Payload: map[string]any{
				"from": from, "to": to, "policy": s.machine.Policy().Name(),
			}})
		}
		return sig, events, nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrIntegrityViolation) {
			s.logger.Error("refusing signature on tampered contract",
				zap.String("contract_id", signer.ContractID.String()), zap.Error(err))
		}
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.ContractChanged(ctx, c)
	}
	if s.archiver != nil {
		if err := s.archiver.EnqueueSignatureArchive(ctx, queue.SignatureArchivePayload{SignatureID: sig.ID, ContractID: c.ID}); err != nil {
			s.logger.Warn("enqueue signature archive", zap.String("signature_id", sig.ID.String()), zap.Error(err))
		}
	}
	s.logger.Info("signature recorded",
		zap.String("contract_id", c.ID.String()),
		zap.String("signature_id", sig.ID.String()),
		zap.Int("version", sig.VersionSigned),
		zap.String("status", string(c.Status)),
	)
	return sig, nil
}
