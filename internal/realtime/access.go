package realtime

import (
	"context"

	"github.com/google/uuid"

	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/auth"
	"github.com/pactline/backend/internal/models"
)

// TokenValidator parses account and signer tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// ScopeResolver maps an account to its organization scope.
type ScopeResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID, email string) (models.OperationContext, error)
}

// ContractReader loads a contract within a scope.
type ContractReader interface {
	Get(ctx context.Context, op models.OperationContext, id uuid.UUID) (*models.ContractDetail, error)
}

// NewAuthorizer lets a signer watch only the contract their session is bound
// to, and an account holder watch contracts of their organization.
func NewAuthorizer(tokens TokenValidator, scopes ScopeResolver, contracts ContractReader) Authorizer {
	return func(ctx context.Context, token string, contractID uuid.UUID) (string, error) {
		claims, err := tokens.Validate(token)
		if err != nil {
			return "", apperr.ErrUnauthorized
		}
		switch claims.Kind {
		case auth.KindSigner:
			if claims.ContractID != contractID {
				return "", apperr.ErrUnauthorized
			}
			return "signer:" + claims.Email, nil
		case auth.KindUser:
			op, err := scopes.Resolve(ctx, claims.UserID, claims.Email)
			if err != nil {
				return "", err
			}
			if _, err := contracts.Get(ctx, op, contractID); err != nil {
				return "", err
			}
			return "user:" + claims.UserID.String(), nil
		default:
			return "", apperr.ErrUnauthorized
		}
	}
}
