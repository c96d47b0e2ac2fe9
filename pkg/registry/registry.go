// Package registry tracks token ownership. Every mint, transfer and burn
// passes through an ordered pipeline of policy gates before the store
// changes, and ownership observers fire after it does.
package registry

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrTokenAlreadyMinted   = errors.New("token already minted")
	ErrTokenNotMinted       = errors.New("token not minted")
	ErrWrongOwner           = errors.New("transfer from wrong owner")
	ErrInsufficientApproval = errors.New("caller is neither owner nor approved")
	ErrZeroAddress          = errors.New("zero address")
)

// Kind discriminates the three ownership mutations.
type Kind uint8

const (
	KindMint Kind = iota
	KindTransfer
	KindBurn
)

func (k Kind) String() string {
	switch k {
	case KindMint:
		return "mint"
	case KindTransfer:
		return "transfer"
	default:
		return "burn"
	}
}

// Mutation describes one ownership change as seen by gates and observers.
// Privileged marks the bridge debit/credit context, which bypasses the
// transfer-restriction gate; it is threaded explicitly rather than held in
// shared state so there is no flag to forget to reset.
type Mutation struct {
	Kind       Kind
	TokenID    uint64
	From       common.Address
	To         common.Address
	Caller     common.Address
	Privileged bool
}

// Gate may abort a mutation before any state changes.
type Gate func(*Mutation) error

// Observer is notified after a mutation commits. Observers are
// informational, not authorization; they also fire for system-held custody
// moves during fusion and bridging.
type Observer func(Mutation)

// Registry is the ownership store. Not safe for concurrent use; the vault
// serializes access.
type Registry struct {
	owners    map[uint64]common.Address
	approved  map[uint64]common.Address
	operators map[common.Address]map[common.Address]bool

	gates     []Gate
	observers []Observer
}

// New builds a registry running the given gates, in order, on every
// mutation.
func New(gates ...Gate) *Registry {
	return &Registry{
		owners:    make(map[uint64]common.Address),
		approved:  make(map[uint64]common.Address),
		operators: make(map[common.Address]map[common.Address]bool),
		gates:     gates,
	}
}

// Observe registers an ownership-changed observer.
func (r *Registry) Observe(fn Observer) {
	r.observers = append(r.observers, fn)
}

// OwnerOf returns the owner of a token, if it is minted.
func (r *Registry) OwnerOf(tokenID uint64) (common.Address, bool) {
	owner, ok := r.owners[tokenID]
	return owner, ok
}

// Mint assigns a fresh token to an owner.
func (r *Registry) Mint(tokenID uint64, to common.Address, privileged bool) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if _, ok := r.owners[tokenID]; ok {
		return ErrTokenAlreadyMinted
	}
	return r.apply(&Mutation{
		Kind:       KindMint,
		TokenID:    tokenID,
		To:         to,
		Caller:     to,
		Privileged: privileged,
	})
}

// Transfer moves a token from its current owner. The caller must be the
// owner, the token's approved delegate, or an operator for the owner.
func (r *Registry) Transfer(tokenID uint64, from, to, caller common.Address, privileged bool) error {
	owner, ok := r.owners[tokenID]
	if !ok {
		return ErrTokenNotMinted
	}
	if owner != from {
		return ErrWrongOwner
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if !r.Authorized(caller, tokenID) {
		return ErrInsufficientApproval
	}
	return r.apply(&Mutation{
		Kind:       KindTransfer,
		TokenID:    tokenID,
		From:       from,
		To:         to,
		Caller:     caller,
		Privileged: privileged,
	})
}

// Burn removes a token from the store.
func (r *Registry) Burn(tokenID uint64, privileged bool) error {
	owner, ok := r.owners[tokenID]
	if !ok {
		return ErrTokenNotMinted
	}
	return r.apply(&Mutation{
		Kind:       KindBurn,
		TokenID:    tokenID,
		From:       owner,
		Caller:     owner,
		Privileged: privileged,
	})
}

// Approve sets the approved delegate for a token. Only the owner or one of
// the owner's operators may approve.
func (r *Registry) Approve(caller common.Address, tokenID uint64, delegate common.Address) error {
	owner, ok := r.owners[tokenID]
	if !ok {
		return ErrTokenNotMinted
	}
	if caller != owner && !r.operators[owner][caller] {
		return ErrInsufficientApproval
	}
	if delegate == (common.Address{}) {
		delete(r.approved, tokenID)
		return nil
	}
	r.approved[tokenID] = delegate
	return nil
}

// SetOperator grants or revokes operator status over all of owner's tokens.
func (r *Registry) SetOperator(owner, operator common.Address, on bool) {
	if on {
		ops, ok := r.operators[owner]
		if !ok {
			ops = make(map[common.Address]bool)
			r.operators[owner] = ops
		}
		ops[operator] = true
		return
	}
	delete(r.operators[owner], operator)
}

// Authorized reports whether caller may move the token: owner, approved
// delegate, or operator for the owner.
func (r *Registry) Authorized(caller common.Address, tokenID uint64) bool {
	owner, ok := r.owners[tokenID]
	if !ok {
		return false
	}
	if caller == owner {
		return true
	}
	if r.approved[tokenID] == caller {
		return true
	}
	return r.operators[owner][caller]
}

func (r *Registry) apply(m *Mutation) error {
	for _, gate := range r.gates {
		if err := gate(m); err != nil {
			return err
		}
	}

	switch m.Kind {
	case KindMint:
		r.owners[m.TokenID] = m.To
	case KindTransfer:
		r.owners[m.TokenID] = m.To
		delete(r.approved, m.TokenID)
	case KindBurn:
		delete(r.owners, m.TokenID)
		delete(r.approved, m.TokenID)
	}

	for _, fn := range r.observers {
		fn(*m)
	}
	return nil
}
