// Package policy provides the gates the ownership registry runs before any
// mutation: the process-wide pause switch and the per-token
// transfer-restriction rule.
package policy

import (
	"errors"

	"github.com/chainsafe/relicvault/pkg/registry"
)

var (
	ErrPaused = errors.New("vault is paused")
	// ErrCannotTransferSoulboundToken rejects any ordinary ownership
	// change of a restricted token. Only the privileged bridge context
	// may move one, and then only back to its own owner.
	ErrCannotTransferSoulboundToken = errors.New("cannot transfer soulbound token")
)

// Pause is the process-wide pause switch.
type Pause struct {
	paused bool
}

func NewPause() *Pause { return &Pause{} }

func (p *Pause) SetPaused(on bool) { p.paused = on }

func (p *Pause) Paused() bool { return p.paused }

// Gate aborts every mutation while paused.
func (p *Pause) Gate(_ *registry.Mutation) error {
	if p.paused {
		return ErrPaused
	}
	return nil
}

// Restriction holds the per-token non-transferable flag.
type Restriction struct {
	restricted map[uint64]bool
}

func NewRestriction() *Restriction {
	return &Restriction{restricted: make(map[uint64]bool)}
}

func (r *Restriction) Restricted(tokenID uint64) bool {
	return r.restricted[tokenID]
}

func (r *Restriction) SetRestricted(tokenID uint64, on bool) {
	if on {
		r.restricted[tokenID] = true
		return
	}
	delete(r.restricted, tokenID)
}

// Gate blocks mutations of restricted tokens unless the mutation carries the
// privileged bridge context. The context is a field on the mutation itself,
// so there is no process-wide bypass flag to restore.
func (r *Restriction) Gate(m *registry.Mutation) error {
	if r.restricted[m.TokenID] && !m.Privileged {
		return ErrCannotTransferSoulboundToken
	}
	return nil
}
