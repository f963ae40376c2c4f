// Package fingerprint derives the content-addressed digest of contract content.
//
// The digest is SHA-256 over the canonical JSON encoding of the content:
// struct fields in fixed order (title, blocks[id,type,content], metadata),
// metadata keys sorted, no insignificant whitespace. It is rendered as
// "sha256:" followed by 64 lowercase hex characters.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/content"
)

const prefix = "sha256:"

// Digest is an encoded content fingerprint.
type Digest string

// Canonical returns the bytes the digest is computed over.
func Canonical(c content.Content) []byte {
	// Marshalling plain strings and a string map cannot fail.
	b, _ := json.Marshal(c.ToWire())
	return b
}

// Of returns the fingerprint of c.
func Of(c content.Content) Digest {
	sum := sha256.Sum256(Canonical(c))
	return Digest(prefix + hex.EncodeToString(sum[:]))
}

// Valid reports whether d is a well-formed digest string.
func (d Digest) Valid() bool {
	s := string(d)
	if !strings.HasPrefix(s, prefix) || len(s) != len(prefix)+sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s[len(prefix):])
	return err == nil && strings.ToLower(s) == s
}

// Verify recomputes the fingerprint of c and compares it with stored.
func Verify(c content.Content, stored Digest) error {
	if got := Of(c); got != stored {
		return fmt.Errorf("%w: stored %s, recomputed %s", apperr.ErrIntegrityViolation, stored, got)
	}
	return nil
}
