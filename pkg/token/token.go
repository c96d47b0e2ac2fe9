// Package token defines the core record types shared across the vault.
package token

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Classification is the lifecycle class of a token. Exactly one class applies
// at any time; the classification (not the id range) is authoritative.
type Classification uint8

const (
	Nonexistent Classification = iota
	Base
	Fused
	Soulbound
	Gift
)

func (c Classification) String() string {
	switch c {
	case Base:
		return "base"
	case Fused:
		return "fused"
	case Soulbound:
		return "soulbound"
	case Gift:
		return "gift"
	default:
		return "nonexistent"
	}
}

// Record is a read snapshot of a single token.
type Record struct {
	ID             uint64
	Classification Classification
	Owner          common.Address
	Restricted     bool
	URI            string
}

// FusionLink is the ordered 4-tuple of base token ids escrowed under a fused
// token. The order is preserved so unfusing returns the components exactly as
// they were fused.
type FusionLink [4]uint64

// CustodyBalance is one (asset, amount) entry of a token's deposited value.
type CustodyBalance struct {
	Asset  common.Address
	Amount *uint256.Int
}
