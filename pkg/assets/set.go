// Package assets maintains the allow-list of fungible assets a base token
// may be minted against, together with each asset's current price and
// default display metadata.
package assets

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Entry is one allow-listed asset.
type Entry struct {
	Asset common.Address
	// Price is the mint price denominated in the asset's base units.
	Price *uint256.Int
	// URI is the default display metadata assigned to tokens minted
	// against this asset.
	URI string
}

// Set is an unordered asset set with O(1) membership and O(1) removal by
// swapping the removed entry with the last one. Not safe for concurrent use;
// the vault serializes access.
type Set struct {
	entries []Entry
	index   map[common.Address]int
}

func NewSet() *Set {
	return &Set{index: make(map[common.Address]int)}
}

// Add inserts or updates an entry.
func (s *Set) Add(e Entry) {
	if i, ok := s.index[e.Asset]; ok {
		s.entries[i] = e
		return
	}
	s.index[e.Asset] = len(s.entries)
	s.entries = append(s.entries, e)
}

// Remove deletes an asset, filling its slot with the last entry.
func (s *Set) Remove(asset common.Address) bool {
	i, ok := s.index[asset]
	if !ok {
		return false
	}
	last := len(s.entries) - 1
	if i != last {
		s.entries[i] = s.entries[last]
		s.index[s.entries[i].Asset] = i
	}
	s.entries = s.entries[:last]
	delete(s.index, asset)
	return true
}

// Contains reports membership.
func (s *Set) Contains(asset common.Address) bool {
	_, ok := s.index[asset]
	return ok
}

// Get returns the entry for an asset.
func (s *Set) Get(asset common.Address) (Entry, bool) {
	i, ok := s.index[asset]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// List returns a copy of all entries. Order is unspecified.
func (s *Set) List() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Set) Len() int { return len(s.entries) }
