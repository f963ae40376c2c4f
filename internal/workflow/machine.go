// Package workflow drives contract status through draft, pending and signed.
package workflow

import (
	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/models"
)

// transitions lists every allowed status edge. pending -> pending lets an owner
// invite more signers while collection is in progress.
var transitions = map[models.ContractStatus][]models.ContractStatus{
	models.StatusDraft:   {models.StatusPending},
	models.StatusPending: {models.StatusPending, models.StatusSigned},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to models.ContractStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves c to status to, or returns a Conflict.
func Transition(c *models.Contract, to models.ContractStatus) error {
	if c.Status == to && to == models.StatusSigned {
		return nil
	}
	if !CanTransition(c.Status, to) {
		return apperr.Conflict("cannot move contract from %s to %s", c.Status, to)
	}
	c.Status = to
	return nil
}

// Machine evaluates status after ledger writes using a Policy.
type Machine struct {
	policy Policy
}

// NewMachine creates a Machine. A nil policy means AllSignersSatisfy.
func NewMachine(policy Policy) *Machine {
	if policy == nil {
		policy = AllSignersSatisfy{}
	}
	return &Machine{policy: policy}
}

// Policy returns the configured completion policy.
func (m *Machine) Policy() Policy { return m.policy }

// OnSignatureRecorded returns the status the contract should have after the
// signature in s. A signed contract stays signed.
func (m *Machine) OnSignatureRecorded(s Snapshot) models.ContractStatus {
	if s.Contract.Status == models.StatusSigned {
		return models.StatusSigned
	}
	if s.Contract.Status == models.StatusPending && m.policy.Satisfied(s) {
		return models.StatusSigned
	}
	return s.Contract.Status
}
