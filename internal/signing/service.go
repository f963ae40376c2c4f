// Package signing decides who may sign a contract and proves control of a
// signer's email with single-use, time-bound links.
package signing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/models"
	"github.com/pactline/backend/pkg/queue"
	"github.com/pactline/backend/pkg/utils"
)

// TokenBytes is the entropy of a signing link token.
const TokenBytes = 32

// signPrefix roots every page a signing link may return to.
const signPrefix = "/sign/"

var (
	// ErrNotAuthorizedToSign is deliberately the same for unknown contracts,
	// uninvited emails and revoked invitations.
	ErrNotAuthorizedToSign = apperr.New(apperr.ErrUnauthorized, "not authorized to sign this contract")
	ErrLinkInvalid         = apperr.New(apperr.ErrUnauthorized, "signing link is invalid")
	ErrLinkExpired         = apperr.New(apperr.ErrUnauthorized, "signing link has expired")
	ErrLinkUsed            = apperr.New(apperr.ErrUnauthorized, "signing link has already been used")
	ErrLinkSuperseded      = apperr.New(apperr.ErrUnauthorized, "signing link was replaced by a newer one")
	ErrInvalidReturnPath   = apperr.New(apperr.ErrValidation, "return path must be a page under /sign/")
	ErrTooManyChallenges   = apperr.New(apperr.ErrRateLimited, "too many signing links requested; try again later")
)

// State is a signer session state. A signer moves
// unauthenticated -> email_submitted -> link_issued -> link_consumed -> signing -> signed
// and may restart at email_submitted at any time.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateEmailSubmitted  State = "email_submitted"
	StateLinkIssued      State = "link_issued"
	StateLinkConsumed    State = "link_consumed"
	StateSigning         State = "signing"
	StateSigned          State = "signed"
)

// SignerFacts are the inputs of the authorization decision for one pair.
type SignerFacts struct {
	Status          models.ContractStatus
	Invited         bool
	CreatorEmail    string
	CreatorIsMember bool
}

// Store is the persistence the service needs.
type Store interface {
	// SignerFacts returns apperr.ErrNotFound for unknown contracts and templates.
	SignerFacts(ctx context.Context, contractID uuid.UUID, email string) (*SignerFacts, error)
	// IssueToken supersedes every live token of the pair and stores tok.
	IssueToken(ctx context.Context, tok *models.SigningToken) error
	// ConsumeToken atomically marks a live token consumed; apperr.ErrNotFound if none.
	ConsumeToken(ctx context.Context, tokenHash string, now time.Time) (*models.SigningToken, error)
	FindToken(ctx context.Context, tokenHash string) (*models.SigningToken, error)
	SigningView(ctx context.Context, contractID uuid.UUID) (*models.Contract, error)
	HasSigned(ctx context.Context, contractID uuid.UUID, email string) (bool, error)
}

// Limiter bounds how often a pair may request links.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LinkQueue hands magic-link emails to the delivery worker.
type LinkQueue interface {
	EnqueueSigningLink(ctx context.Context, payload queue.SigningLinkPayload) error
}

// SessionIssuer mints signer session tokens.
type SessionIssuer interface {
	GenerateSigner(contractID uuid.UUID, email string, ttl time.Duration) (string, time.Time, error)
}

// Config holds link and session settings.
type Config struct {
	PublicURL    string
	LinkTTL      time.Duration
	SessionTTL   time.Duration
	ResendLimit  int
	ResendWindow time.Duration
}

// Session is returned when a link is consumed.
type Session struct {
	ContractID uuid.UUID `json:"contract_id"`
	Email      string    `json:"email"`
	Token      string    `json:"session_token"`
	ExpiresAt  time.Time `json:"expires_at"`
	Redirect   string    `json:"redirect"`
}

// SignerView is what the signing page renders for an authenticated signer.
type SignerView struct {
	Contract *models.Contract `json:"contract"`
	Email    string           `json:"email"`
	State    State            `json:"state"`
}

// Service implements signer authorization and the email-link challenge.
type Service struct {
	store    Store
	limiter  Limiter
	links    LinkQueue
	sessions SessionIssuer
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a signing service. limiter may be nil.
func NewService(store Store, limiter Limiter, links LinkQueue, sessions SessionIssuer, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = 15 * time.Minute
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	return &Service{store: store, limiter: limiter, links: links, sessions: sessions, cfg: cfg, logger: logger, now: time.Now}
}

// Authorize succeeds iff email was invited to the contract, or is the email of
// the contract's creator while the creator belongs to the owning organization.
func (s *Service) Authorize(ctx context.Context, contractID uuid.UUID, email string) error {
	_, err := s.authorize(ctx, contractID, email)
	return err
}

func (s *Service) authorize(ctx context.Context, contractID uuid.UUID, email string) (*SignerFacts, error) {
	e, ok := utils.NormalizeEmail(email)
	if !ok {
		return nil, ErrNotAuthorizedToSign
	}
	facts, err := s.store.SignerFacts(ctx, contractID, e)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, ErrNotAuthorizedToSign
		}
		return nil, fmt.Errorf("load signer facts: %w", err)
	}
	if facts.Invited {
		return facts, nil
	}
	if facts.CreatorIsMember && facts.CreatorEmail != "" && strings.EqualFold(facts.CreatorEmail, e) {
		return facts, nil
	}
	return nil, ErrNotAuthorizedToSign
}

// Challenge issues a fresh signing link for the pair and queues its delivery.
// Any earlier link for the pair stops working.
func (s *Service) Challenge(ctx context.Context, contractID uuid.UUID, email, returnPath string) error {
	facts, err := s.authorize(ctx, contractID, email)
	if err != nil {
		return err
	}
	e, _ := utils.NormalizeEmail(email)
	// A closed contract answers like an unknown one; otherwise a draft would
	// confirm its creator's email.
	if facts.Status != models.StatusPending && facts.Status != models.StatusSigned {
		return ErrNotAuthorizedToSign
	}
	returnTo, err := SanitizeReturnPath(returnPath, contractID)
	if err != nil {
		return err
	}
	if s.limiter != nil && s.cfg.ResendLimit > 0 {
		key := fmt.Sprintf("signing:challenge:%s:%s", contractID, e)
		allowed, err := s.limiter.Allow(ctx, key, s.cfg.ResendLimit, s.cfg.ResendWindow)
		if err != nil {
			s.logger.Warn("challenge rate limiter unavailable", zap.Error(err))
		} else if !allowed {
			return ErrTooManyChallenges
		}
	}

	raw, err := utils.GenerateToken(TokenBytes)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	now := s.now()
	tok := &models.SigningToken{
		ID:         uuid.New(),
		ContractID: contractID,
		Email:      e,
		TokenHash:  utils.HashToken(raw),
		ReturnPath: returnTo,
		ExpiresAt:  now.Add(s.cfg.LinkTTL),
		CreatedAt:  now,
	}
	if err := s.store.IssueToken(ctx, tok); err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	payload := queue.SigningLinkPayload{
		ContractID:     contractID,
		RecipientEmail: e,
		RedirectURL:    s.cfg.PublicURL + "/sign/verify?token=" + url.QueryEscape(raw),
		ExpiresAt:      tok.ExpiresAt,
	}
	if err := s.links.EnqueueSigningLink(ctx, payload); err != nil {
		return fmt.Errorf("enqueue signing link: %w", err)
	}
	s.logger.Info("signing link issued",
		zap.String("contract_id", contractID.String()),
		zap.String("token_id", tok.ID.String()),
		zap.Time("expires_at", tok.ExpiresAt),
	)
	return nil
}

// Consume redeems a raw link token exactly once, re-checks authorization and
// opens a signer session.
func (s *Service) Consume(ctx context.Context, raw string) (*Session, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrLinkInvalid
	}
	hash := utils.HashToken(raw)
	tok, err := s.store.ConsumeToken(ctx, hash, s.now())
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, s.classify(ctx, hash)
		}
		return nil, fmt.Errorf("consume token: %w", err)
	}
	if err := s.Authorize(ctx, tok.ContractID, tok.Email); err != nil {
		s.logger.Warn("signing link redeemed after authorization was revoked",
			zap.String("contract_id", tok.ContractID.String()))
		return nil, err
	}
	session, expires, err := s.sessions.GenerateSigner(tok.ContractID, tok.Email, s.cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("issue signer session: %w", err)
	}
	q := url.Values{"email": {tok.Email}}
	return &Session{
		ContractID: tok.ContractID,
		Email:      tok.Email,
		Token:      session,
		ExpiresAt:  expires,
		Redirect:   tok.ReturnPath + "?" + q.Encode(),
	}, nil
}

// classify explains why a token could not be consumed.
func (s *Service) classify(ctx context.Context, hash string) error {
	tok, err := s.store.FindToken(ctx, hash)
	if err != nil {
		return ErrLinkInvalid
	}
	switch {
	case tok.ConsumedAt != nil:
		return ErrLinkUsed
	case tok.SupersededAt != nil:
		return ErrLinkSuperseded
	case !s.now().Before(tok.ExpiresAt):
		return ErrLinkExpired
	default:
		return ErrLinkInvalid
	}
}

// View returns the contract and session state for an authenticated signer.
func (s *Service) View(ctx context.Context, contractID uuid.UUID, email string) (*SignerView, error) {
	if err := s.Authorize(ctx, contractID, email); err != nil {
		return nil, err
	}
	c, err := s.store.SigningView(ctx, contractID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, ErrNotAuthorizedToSign
		}
		return nil, err
	}
	state, err := s.SessionState(ctx, contractID, email)
	if err != nil {
		return nil, err
	}
	return &SignerView{Contract: c, Email: strings.ToLower(email), State: state}, nil
}

// SessionState reports where an authenticated signer is in the signing flow.
func (s *Service) SessionState(ctx context.Context, contractID uuid.UUID, email string) (State, error) {
	signed, err := s.store.HasSigned(ctx, contractID, strings.ToLower(email))
	if err != nil {
		return "", err
	}
	if signed {
		return StateSigned, nil
	}
	return StateLinkConsumed, nil
}

// SanitizeReturnPath accepts only plain paths under /sign/. Escapes are
// refused outright so the stored path is exactly what the browser follows.
// An empty path defaults to the contract's signing page.
func SanitizeReturnPath(p string, contractID uuid.UUID) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return signPrefix + contractID.String(), nil
	}
	if !strings.HasPrefix(p, signPrefix) || strings.ContainsAny(p, "%\\\r\n\t") {
		return "", ErrInvalidReturnPath
	}
	u, err := url.Parse(p)
	if err != nil || u.Scheme != "" || u.Host != "" || u.RawQuery != "" || u.Fragment != "" || u.Opaque != "" {
		return "", ErrInvalidReturnPath
	}
	clean := path.Clean(u.Path)
	if !strings.HasPrefix(clean, signPrefix) {
		return "", ErrInvalidReturnPath
	}
	return clean, nil
}
