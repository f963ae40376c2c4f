package workflow

import (
	"fmt"

	"github.com/pactline/backend/internal/models"
)

// Snapshot is the signing state of a contract at the moment a signature is recorded.
type Snapshot struct {
	Contract  *models.Contract
	Requested []string // invited signer emails
	Signed    []string // emails with a signature, including the one being recorded
}

// Policy decides when a pending contract becomes signed.
type Policy interface {
	Name() string
	Satisfied(s Snapshot) bool
}

// AnySignerSatisfies marks a contract signed on its first signature.
type AnySignerSatisfies struct{}

func (AnySignerSatisfies) Name() string { return "any" }

func (AnySignerSatisfies) Satisfied(s Snapshot) bool { return len(s.Signed) > 0 }

// AllSignersSatisfy marks a contract signed once every invited email has signed.
// A contract with no invitations is satisfied by any signature.
type AllSignersSatisfy struct{}

func (AllSignersSatisfy) Name() string { return "all" }

func (AllSignersSatisfy) Satisfied(s Snapshot) bool {
	if len(s.Signed) == 0 {
		return false
	}
	signed := make(map[string]struct{}, len(s.Signed))
	for _, e := range s.Signed {
		signed[e] = struct{}{}
	}
	for _, e := range s.Requested {
		if _, ok := signed[e]; !ok {
			return false
		}
	}
	return true
}

// PolicyFor returns the policy configured by name ("all" or "any").
func PolicyFor(name string) (Policy, error) {
	switch name {
	case "", "all":
		return AllSignersSatisfy{}, nil
	case "any":
		return AnySignerSatisfies{}, nil
	default:
		return nil, fmt.Errorf("unknown signing policy %q", name)
	}
}
