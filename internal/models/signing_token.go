package models

import (
	"time"

	"github.com/google/uuid"
)

// SigningToken is a single-use, time-bound proof of email control for one
// (contract, email) pair. Only the SHA-256 of the raw token is stored.
type SigningToken struct {
	ID           uuid.UUID  `json:"id"`
	ContractID   uuid.UUID  `json:"contract_id"`
	Email        string     `json:"email"`
	TokenHash    string     `json:"-"`
	ReturnPath   string     `json:"return_path"`
	ExpiresAt    time.Time  `json:"expires_at"`
	ConsumedAt   *time.Time `json:"consumed_at,omitempty"`
	SupersededAt *time.Time `json:"superseded_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Usable reports whether t can still be consumed at now.
func (t *SigningToken) Usable(now time.Time) bool {
	return t.ConsumedAt == nil && t.SupersededAt == nil && now.Before(t.ExpiresAt)
}
