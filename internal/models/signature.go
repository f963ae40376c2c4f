package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pactline/backend/internal/fingerprint"
)

// SignatureRequest authorizes a specific email to sign a specific contract.
type SignatureRequest struct {
	ContractID  uuid.UUID `json:"contract_id"`
	SignerEmail string    `json:"signer_email"`
	CreatedAt   time.Time `json:"created_at"`
}

// SignerDetails are the legal details a signer submits.
type SignerDetails struct {
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	PhoneNumber string     `json:"phone_number"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	NationalID  *string    `json:"national_id,omitempty"`
	Address     string     `json:"address"`
	PostalCode  string     `json:"postal_code"`
	City        string     `json:"city"`
}

// Signature is an immutable ledger entry.
type Signature struct {
	ID               uuid.UUID          `json:"id"`
	ContractID       uuid.UUID          `json:"contract_id"`
	SignerEmail      string             `json:"signer_email"`
	Details          SignerDetails      `json:"details"`
	Image            []byte             `json:"-"`
	ImageContentType string             `json:"image_content_type"`
	SignedAt         time.Time          `json:"signed_at"`
	VersionSigned    int                `json:"version_signed"`
	ContentHash      fingerprint.Digest `json:"content_hash"`
}

// SignatureView is a signature without its image bytes or national id.
type SignatureView struct {
	ID            uuid.UUID          `json:"id"`
	SignerEmail   string             `json:"signer_email"`
	FirstName     string             `json:"first_name"`
	LastName      string             `json:"last_name"`
	City          string             `json:"city"`
	SignedAt      time.Time          `json:"signed_at"`
	VersionSigned int                `json:"version_signed"`
	ContentHash   fingerprint.Digest `json:"content_hash"`
}

// View returns the public projection of s.
func (s *Signature) View() SignatureView {
	return SignatureView{
		ID:            s.ID,
		SignerEmail:   s.SignerEmail,
		FirstName:     s.Details.FirstName,
		LastName:      s.Details.LastName,
		City:          s.Details.City,
		SignedAt:      s.SignedAt,
		VersionSigned: s.VersionSigned,
		ContentHash:   s.ContentHash,
	}
}

// SignatureArchive records where a signature image was copied in object storage.
type SignatureArchive struct {
	SignatureID uuid.UUID `json:"signature_id"`
	Bucket      string    `json:"bucket"`
	ObjectKey   string    `json:"object_key"`
	ArchivedAt  time.Time `json:"archived_at"`
}
