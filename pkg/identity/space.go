// Package identity partitions the token id space into disjoint ranges and
// hands out the next free id per range.
package identity

// Range identifies which partition of the id space an id falls in. It is a
// candidate only; the token's classification is authoritative for behavior.
type Range uint8

const (
	RangeUnknown Range = iota
	RangeBase
	RangeGift
	// RangePremium is shared by fused and soulbound tokens. Ids are
	// monotonically increasing and never reused.
	RangePremium
)

func (r Range) String() string {
	switch r {
	case RangeBase:
		return "base"
	case RangeGift:
		return "gift"
	case RangePremium:
		return "premium"
	default:
		return "unknown"
	}
}

// Space maintains the three allocation counters. Base ids occupy
// [1, baseSize], gift ids (baseSize, baseSize+giftSize], and premium ids
// everything above. The space is not safe for concurrent use; the vault
// serializes access.
type Space struct {
	baseSize uint64
	giftSize uint64

	nextBase    uint64
	nextGift    uint64
	nextPremium uint64
}

// NewSpace sizes the base and gift ranges. Sizes are fixed for the lifetime
// of the space; supply caps are enforced by the lifecycle, not here.
func NewSpace(baseSize, giftSize uint64) *Space {
	return &Space{
		baseSize:    baseSize,
		giftSize:    giftSize,
		nextBase:    1,
		nextGift:    baseSize + 1,
		nextPremium: baseSize + giftSize + 1,
	}
}

// PeekBase returns the id the next base allocation will produce without
// consuming it. Callers run fallible work (the deposit) against the peeked id
// and commit with the matching allocate call only on success.
func (s *Space) PeekBase() uint64 { return s.nextBase }

// AllocateBase consumes and returns the next base id.
func (s *Space) AllocateBase() uint64 {
	id := s.nextBase
	s.nextBase++
	return id
}

// PeekGift returns the next gift id without consuming it.
func (s *Space) PeekGift() uint64 { return s.nextGift }

// AllocateGift consumes and returns the next gift id.
func (s *Space) AllocateGift() uint64 {
	id := s.nextGift
	s.nextGift++
	return id
}

// AllocatePremium consumes and returns the next premium id.
func (s *Space) AllocatePremium() uint64 {
	id := s.nextPremium
	s.nextPremium++
	return id
}

// BaseAllocated reports how many base ids have been handed out.
func (s *Space) BaseAllocated() uint64 { return s.nextBase - 1 }

// GiftAllocated reports how many gift ids have been handed out.
func (s *Space) GiftAllocated() uint64 { return s.nextGift - s.baseSize - 1 }

// PremiumAllocated reports how many premium ids have been handed out.
func (s *Space) PremiumAllocated() uint64 {
	return s.nextPremium - s.baseSize - s.giftSize - 1
}

// RangeOf returns the candidate range for an id. Used for range-validated
// admin batches and to derive a classification when crediting a bridged
// token; never consulted for authoritative classification otherwise.
func (s *Space) RangeOf(id uint64) Range {
	switch {
	case id == 0:
		return RangeUnknown
	case id <= s.baseSize:
		return RangeBase
	case id <= s.baseSize+s.giftSize:
		return RangeGift
	default:
		return RangePremium
	}
}
