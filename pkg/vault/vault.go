// Package vault is the token lifecycle state machine. It coordinates the
// identity space, the ownership registry, the custody ledger and the policy
// gates behind a single mutex, so every public operation runs to completion
// against a consistent view of the whole store.
package vault

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/chainsafe/relicvault/internal/metrics"
	"github.com/chainsafe/relicvault/pkg/assets"
	"github.com/chainsafe/relicvault/pkg/custody"
	"github.com/chainsafe/relicvault/pkg/identity"
	"github.com/chainsafe/relicvault/pkg/policy"
	"github.com/chainsafe/relicvault/pkg/registry"
	"github.com/chainsafe/relicvault/pkg/token"
)

var (
	ErrMintingClosed       = errors.New("minting period is over")
	ErrBaseSupplyExhausted = errors.New("base token supply exhausted")
	ErrGiftSupplyExhausted = errors.New("gift token supply exhausted")
	ErrAssetNotSupported   = errors.New("asset not supported or has no price")

	ErrOnlyTokenOwnerCanFuseTokens   = errors.New("only token owner can fuse tokens")
	ErrCanOnlyFuseBaseTokens         = errors.New("can only fuse base tokens")
	ErrSameTokenUnderlyingAssets     = errors.New("fused tokens must have distinct underlying assets")
	ErrOnlyTokenOwnerCanUnfuseTokens = errors.New("only token owner can unfuse tokens")
	ErrCanOnlyUnfuseFusedTokens      = errors.New("can only unfuse fused tokens")
	ErrUnfuseTokenBeforeBurning      = errors.New("unfuse token before burning")
	ErrOnlyTokenOwnerCanBurnTokens   = errors.New("only token owner can burn tokens")

	ErrUnauthorizedAdmin = errors.New("caller is not the vault admin")
	ErrInvalidTokenID    = errors.New("token id outside every range")

	// The external vault interface requires generic deposit/withdraw entry
	// points; value only moves through the mint/burn lifecycle, so they
	// unconditionally fail.
	ErrDirectDepositsDisabled    = errors.New("direct deposits are disabled")
	ErrDirectWithdrawalsDisabled = errors.New("direct withdrawals are disabled")
)

// TokenAlreadyExistsError rejects a bridge credit for a token id that is
// already live on this ledger. It is the double-credit defense; transport
// dedup is not trusted.
type TokenAlreadyExistsError struct {
	TokenID uint64
}

func (e *TokenAlreadyExistsError) Error() string {
	return fmt.Sprintf("token %d already exists", e.TokenID)
}

// Config carries the lifecycle parameters. All of it is owner-administered
// input; the vault tolerates changes between calls.
type Config struct {
	// Self is the vault's own account: custody holder and fusion escrow.
	Self common.Address
	// Admin may mint soulbound tokens, sweep fees, pause, and edit the
	// asset allow-list.
	Admin common.Address

	BaseSupply uint64
	GiftSupply uint64
	// MintDeadline closes base and gift minting. Zero means no deadline.
	MintDeadline time.Time

	// GiftAsset and GiftPrice denominate the fixed gift mint deposit.
	GiftAsset common.Address
	GiftPrice *uint256.Int
	GiftURI   string
	FusedURI  string

	FeeBps uint64
}

// Vault owns all mutable token state. One mutex serializes every public
// operation, including its nested external-capability calls, reproducing the
// run-to-completion execution model the design assumes.
type Vault struct {
	mu sync.Mutex

	cfg         Config
	ids         *identity.Space
	reg         *registry.Registry
	pause       *policy.Pause
	restriction *policy.Restriction
	ledger      *custody.Ledger
	assets      *assets.Set

	class map[uint64]token.Classification
	uris  map[uint64]string
	links map[uint64]token.FusionLink

	now    func() time.Time
	logger *zap.Logger
}

// New wires the vault. The registry mutation pipeline runs the pause gate,
// then the restriction gate, then the store mutation, then observers.
func New(cfg Config, resolver custody.Resolver, catalog *assets.Set, logger *zap.Logger) *Vault {
	if cfg.GiftPrice == nil {
		cfg.GiftPrice = uint256.NewInt(0)
	}
	if catalog == nil {
		catalog = assets.NewSet()
	}
	v := &Vault{
		cfg:         cfg,
		ids:         identity.NewSpace(cfg.BaseSupply, cfg.GiftSupply),
		pause:       policy.NewPause(),
		restriction: policy.NewRestriction(),
		assets:      catalog,
		class:       make(map[uint64]token.Classification),
		uris:        make(map[uint64]string),
		links:       make(map[uint64]token.FusionLink),
		now:         time.Now,
		logger:      logger,
	}
	v.ledger = custody.NewLedger(cfg.Self, cfg.FeeBps, resolver, logger)
	v.reg = registry.New(v.pause.Gate, v.restriction.Gate)
	v.reg.Observe(func(m registry.Mutation) {
		metrics.OwnershipMutations.WithLabelValues(m.Kind.String()).Inc()
		logger.Debug("Ownership changed",
			zap.String("kind", m.Kind.String()),
			zap.Uint64("token_id", m.TokenID),
			zap.String("from", m.From.Hex()),
			zap.String("to", m.To.Hex()))
	})
	return v
}

// Observe registers an ownership observer. Informational only.
func (v *Vault) Observe(fn registry.Observer) { v.reg.Observe(fn) }

// MintBase mints a new base token to caller, backed by a deposit of the
// asset's current price. Returns the new token id.
func (v *Vault) MintBase(caller, asset common.Address) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pause.Paused() {
		return 0, policy.ErrPaused
	}
	if err := v.checkDeadline(); err != nil {
		return 0, err
	}
	if v.ids.BaseAllocated() >= v.cfg.BaseSupply {
		return 0, ErrBaseSupplyExhausted
	}
	entry, ok := v.assets.Get(asset)
	if !ok || entry.Price == nil || entry.Price.IsZero() {
		return 0, ErrAssetNotSupported
	}

	// Deposit against the peeked id first; the id is only consumed once
	// the deposit succeeded, keeping the operation all-or-nothing.
	id := v.ids.PeekBase()
	if err := v.ledger.Deposit(id, asset, caller, entry.Price); err != nil {
		metrics.OperationErrors.WithLabelValues("mint_base").Inc()
		return 0, err
	}
	v.ids.AllocateBase()

	v.class[id] = token.Base
	v.uris[id] = entry.URI
	if err := v.reg.Mint(id, caller, false); err != nil {
		// Gates were checked up front; a failure here is a wiring bug.
		return 0, err
	}

	metrics.MintsTotal.WithLabelValues(token.Base.String()).Inc()
	metrics.SupplyAllocated.WithLabelValues(identity.RangeBase.String()).Set(float64(v.ids.BaseAllocated()))
	v.logger.Info("Minted base token",
		zap.Uint64("token_id", id),
		zap.String("owner", caller.Hex()),
		zap.String("asset", asset.Hex()),
		zap.String("price", entry.Price.Dec()))
	return id, nil
}

// MintGift mints a gift token to recipient, paid for by caller at the fixed
// gift price in the reference asset.
func (v *Vault) MintGift(caller, recipient common.Address) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pause.Paused() {
		return 0, policy.ErrPaused
	}
	if err := v.checkDeadline(); err != nil {
		return 0, err
	}
	if v.ids.GiftAllocated() >= v.cfg.GiftSupply {
		return 0, ErrGiftSupplyExhausted
	}
	if recipient == (common.Address{}) {
		return 0, registry.ErrZeroAddress
	}

	id := v.ids.PeekGift()
	if err := v.ledger.Deposit(id, v.cfg.GiftAsset, caller, v.cfg.GiftPrice); err != nil {
		metrics.OperationErrors.WithLabelValues("mint_gift").Inc()
		return 0, err
	}
	v.ids.AllocateGift()

	v.class[id] = token.Gift
	v.uris[id] = v.cfg.GiftURI
	if err := v.reg.Mint(id, recipient, false); err != nil {
		return 0, err
	}

	metrics.MintsTotal.WithLabelValues(token.Gift.String()).Inc()
	metrics.SupplyAllocated.WithLabelValues(identity.RangeGift.String()).Set(float64(v.ids.GiftAllocated()))
	v.logger.Info("Minted gift token",
		zap.Uint64("token_id", id),
		zap.String("payer", caller.Hex()),
		zap.String("owner", recipient.Hex()))
	return id, nil
}

// MintSoulbound mints a non-transferable token to recipient with an explicit
// metadata string. Admin only; no deposit, no deadline, no cap beyond the
// shared premium counter.
func (v *Vault) MintSoulbound(caller, recipient common.Address, uri string) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pause.Paused() {
		return 0, policy.ErrPaused
	}
	if caller != v.cfg.Admin {
		return 0, ErrUnauthorizedAdmin
	}

	id := v.ids.AllocatePremium()
	v.class[id] = token.Soulbound
	v.uris[id] = uri
	if err := v.reg.Mint(id, recipient, false); err != nil {
		return 0, err
	}
	// The restriction flag goes on after the mint so the mint itself is
	// not blocked by the gate it just armed.
	v.restriction.SetRestricted(id, true)

	metrics.MintsTotal.WithLabelValues(token.Soulbound.String()).Inc()
	metrics.SupplyAllocated.WithLabelValues(identity.RangePremium.String()).Set(float64(v.ids.PremiumAllocated()))
	v.logger.Info("Minted soulbound token",
		zap.Uint64("token_id", id),
		zap.String("owner", recipient.Hex()))
	return id, nil
}

// Fuse escrows four base tokens owned by caller, all backed by pairwise
// distinct assets, and mints a fused token referencing them.
func (v *Vault) Fuse(caller common.Address, ids [4]uint64) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pause.Paused() {
		return 0, policy.ErrPaused
	}

	var underlying [4]common.Address
	for i, id := range ids {
		owner, ok := v.reg.OwnerOf(id)
		if !ok || owner != caller {
			return 0, ErrOnlyTokenOwnerCanFuseTokens
		}
		if v.class[id] != token.Base {
			return 0, ErrCanOnlyFuseBaseTokens
		}
		// A token credited from another ledger has no local custody
		// record; its underlying asset reads as the zero address, so two
		// such tokens collide in the distinctness check below.
		if held := v.ledger.AssetsOf(id); len(held) > 0 {
			underlying[i] = held[0]
		}
	}

	// Exactly six pairs; checked once at fusion time.
	if underlying[0] == underlying[1] || underlying[0] == underlying[2] ||
		underlying[0] == underlying[3] || underlying[1] == underlying[2] ||
		underlying[1] == underlying[3] || underlying[2] == underlying[3] {
		return 0, ErrSameTokenUnderlyingAssets
	}

	for _, id := range ids {
		if err := v.reg.Transfer(id, caller, v.cfg.Self, caller, false); err != nil {
			return 0, err
		}
	}

	fusedID := v.ids.AllocatePremium()
	v.class[fusedID] = token.Fused
	v.uris[fusedID] = v.cfg.FusedURI
	v.links[fusedID] = token.FusionLink(ids)
	if err := v.reg.Mint(fusedID, caller, false); err != nil {
		return 0, err
	}

	metrics.FusionsTotal.WithLabelValues("fuse").Inc()
	v.logger.Info("Fused tokens",
		zap.Uint64("fused_id", fusedID),
		zap.Uint64s("components", ids[:]),
		zap.String("owner", caller.Hex()))
	return fusedID, nil
}

// Unfuse burns a fused token and returns its four escrowed components to
// caller in their original order. The fused token is destroyed before any
// component moves, so it is never observable as fused mid-transfer.
func (v *Vault) Unfuse(caller common.Address, fusedID uint64) (token.FusionLink, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pause.Paused() {
		return token.FusionLink{}, policy.ErrPaused
	}
	owner, ok := v.reg.OwnerOf(fusedID)
	if !ok || owner != caller {
		return token.FusionLink{}, ErrOnlyTokenOwnerCanUnfuseTokens
	}
	if v.class[fusedID] != token.Fused {
		return token.FusionLink{}, ErrCanOnlyUnfuseFusedTokens
	}

	link := v.links[fusedID]
	delete(v.links, fusedID)
	delete(v.class, fusedID)
	delete(v.uris, fusedID)
	if err := v.reg.Burn(fusedID, false); err != nil {
		return token.FusionLink{}, err
	}

	for _, id := range link {
		if err := v.reg.Transfer(id, v.cfg.Self, caller, v.cfg.Self, false); err != nil {
			return token.FusionLink{}, err
		}
	}

	metrics.FusionsTotal.WithLabelValues("unfuse").Inc()
	v.logger.Info("Unfused token",
		zap.Uint64("fused_id", fusedID),
		zap.Uint64s("components", link[:]),
		zap.String("owner", caller.Hex()))
	return link, nil
}

// Burn destroys a token owned by caller, paying out every custody record to
// caller first. Fused tokens must be unfused before burning. A restricted
// token's ownership removal is blocked by the restriction gate, which makes
// soulbound tokens permanent on a ledger.
func (v *Vault) Burn(caller common.Address, tokenID uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pause.Paused() {
		return policy.ErrPaused
	}
	owner, ok := v.reg.OwnerOf(tokenID)
	if !ok || owner != caller {
		return ErrOnlyTokenOwnerCanBurnTokens
	}
	cls := v.class[tokenID]
	if cls == token.Fused {
		return ErrUnfuseTokenBeforeBurning
	}
	// Restricted tokens carry no custody records, so checking the gate
	// before the payout loop keeps the operation all-or-nothing.
	if v.restriction.Restricted(tokenID) {
		return policy.ErrCannotTransferSoulboundToken
	}

	for _, asset := range v.ledger.AssetsOf(tokenID) {
		amount := v.ledger.Balance(tokenID, asset)
		if err := v.ledger.Withdraw(tokenID, asset, caller, amount); err != nil {
			metrics.OperationErrors.WithLabelValues("burn").Inc()
			return err
		}
	}

	delete(v.class, tokenID)
	delete(v.uris, tokenID)
	if err := v.reg.Burn(tokenID, false); err != nil {
		return err
	}

	metrics.BurnsTotal.WithLabelValues(cls.String()).Inc()
	v.logger.Info("Burned token",
		zap.Uint64("token_id", tokenID),
		zap.String("classification", cls.String()),
		zap.String("owner", caller.Hex()))
	return nil
}

// Transfer moves a token between holders through the full gate pipeline.
func (v *Vault) Transfer(caller common.Address, tokenID uint64, from, to common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reg.Transfer(tokenID, from, to, caller, false)
}

// Approve sets the approved delegate for a token.
func (v *Vault) Approve(caller common.Address, tokenID uint64, delegate common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reg.Approve(caller, tokenID, delegate)
}

// SetOperator grants or revokes an operator over all of owner's tokens.
func (v *Vault) SetOperator(owner, operator common.Address, on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reg.SetOperator(owner, operator, on)
}

// Debit removes a token from this ledger for an outbound bridge transfer.
// Caller must be the owner or an approved delegate. Custody records are
// deliberately left in place: they are dormant state that becomes meaningful
// again only if the token is credited back here.
func (v *Vault) Debit(caller common.Address, tokenID uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pause.Paused() {
		return policy.ErrPaused
	}
	if _, ok := v.reg.OwnerOf(tokenID); !ok {
		return registry.ErrTokenNotMinted
	}
	if !v.reg.Authorized(caller, tokenID) {
		return registry.ErrInsufficientApproval
	}

	if err := v.reg.Burn(tokenID, true); err != nil {
		return err
	}
	delete(v.class, tokenID)
	delete(v.uris, tokenID)
	v.restriction.SetRestricted(tokenID, false)
	return nil
}

// Credit recreates a token on this ledger from an inbound bridge message.
// Fails with TokenAlreadyExistsError if the id is already live here; this is
// the replay/double-credit defense. Classification is derived from the id's
// range since the wire payload carries only metadata and the restriction
// flag.
func (v *Vault) Credit(to common.Address, tokenID uint64, uri string, restricted bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pause.Paused() {
		return policy.ErrPaused
	}
	if _, ok := v.reg.OwnerOf(tokenID); ok {
		return &TokenAlreadyExistsError{TokenID: tokenID}
	}

	var cls token.Classification
	switch v.ids.RangeOf(tokenID) {
	case identity.RangeBase:
		cls = token.Base
	case identity.RangeGift:
		cls = token.Gift
	case identity.RangePremium:
		if restricted {
			cls = token.Soulbound
		} else {
			cls = token.Fused
		}
	default:
		return ErrInvalidTokenID
	}

	if err := v.reg.Mint(tokenID, to, true); err != nil {
		return err
	}
	v.class[tokenID] = cls
	v.uris[tokenID] = uri
	v.restriction.SetRestricted(tokenID, restricted)
	return nil
}

// Deposit satisfies the external vault interface. Always fails; value enters
// only through a mint.
func (v *Vault) Deposit(uint64, common.Address, common.Address, *uint256.Int) error {
	return ErrDirectDepositsDisabled
}

// Withdraw satisfies the external vault interface. Always fails; value
// leaves only through a burn or fee sweep.
func (v *Vault) Withdraw(uint64, common.Address, common.Address, *uint256.Int) error {
	return ErrDirectWithdrawalsDisabled
}

// SweepFees pays the accrued fees of an asset to recipient. Admin only.
func (v *Vault) SweepFees(caller, asset, recipient common.Address) (*uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if caller != v.cfg.Admin {
		return nil, ErrUnauthorizedAdmin
	}
	amount, err := v.ledger.SweepFees(asset, recipient)
	if err != nil {
		metrics.OperationErrors.WithLabelValues("sweep_fees").Inc()
		return nil, err
	}
	if !amount.IsZero() {
		metrics.FeesSwept.WithLabelValues(asset.Hex()).Inc()
		v.logger.Info("Swept fees",
			zap.String("asset", asset.Hex()),
			zap.String("amount", amount.Dec()),
			zap.String("recipient", recipient.Hex()))
	}
	return amount, nil
}

// SetPaused toggles the process-wide pause gate. Admin only.
func (v *Vault) SetPaused(caller common.Address, on bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.cfg.Admin {
		return ErrUnauthorizedAdmin
	}
	v.pause.SetPaused(on)
	v.logger.Info("Pause state changed", zap.Bool("paused", on))
	return nil
}

// AddAsset inserts or updates an allow-list entry. Admin only.
func (v *Vault) AddAsset(caller common.Address, entry assets.Entry) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.cfg.Admin {
		return ErrUnauthorizedAdmin
	}
	v.assets.Add(entry)
	return nil
}

// RemoveAsset drops an allow-list entry. Admin only.
func (v *Vault) RemoveAsset(caller, asset common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.cfg.Admin {
		return ErrUnauthorizedAdmin
	}
	v.assets.Remove(asset)
	return nil
}

// Token returns a read snapshot of a token.
func (v *Vault) Token(tokenID uint64) (token.Record, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	owner, ok := v.reg.OwnerOf(tokenID)
	if !ok {
		return token.Record{}, false
	}
	return token.Record{
		ID:             tokenID,
		Classification: v.class[tokenID],
		Owner:          owner,
		Restricted:     v.restriction.Restricted(tokenID),
		URI:            v.uris[tokenID],
	}, true
}

// OwnerOf returns the owner of a token.
func (v *Vault) OwnerOf(tokenID uint64) (common.Address, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reg.OwnerOf(tokenID)
}

// Authorized reports whether caller may move the token.
func (v *Vault) Authorized(caller common.Address, tokenID uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reg.Authorized(caller, tokenID)
}

// FusionLink returns the escrowed components of a fused token.
func (v *Vault) FusionLink(fusedID uint64) (token.FusionLink, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	link, ok := v.links[fusedID]
	return link, ok
}

// CustodyBalances returns the custody records of a token.
func (v *Vault) CustodyBalances(tokenID uint64) []token.CustodyBalance {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ledger.Balances(tokenID)
}

// CustodyBalance returns one custody record.
func (v *Vault) CustodyBalance(tokenID uint64, asset common.Address) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ledger.Balance(tokenID, asset)
}

// Fees returns the accrued fee balance of an asset.
func (v *Vault) Fees(asset common.Address) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ledger.Fees(asset)
}

// Assets lists the current allow-list.
func (v *Vault) Assets() []assets.Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.assets.List()
}

// Supply reports allocation counts per range together with the caps.
func (v *Vault) Supply() (baseAllocated, baseCap, giftAllocated, giftCap, premiumAllocated uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ids.BaseAllocated(), v.cfg.BaseSupply,
		v.ids.GiftAllocated(), v.cfg.GiftSupply,
		v.ids.PremiumAllocated()
}

// RangeOf exposes the candidate range query for admin range validation.
func (v *Vault) RangeOf(tokenID uint64) identity.Range {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ids.RangeOf(tokenID)
}

// SetClock overrides the time source. Test hook.
func (v *Vault) SetClock(now func() time.Time) { v.now = now }

func (v *Vault) checkDeadline() error {
	if !v.cfg.MintDeadline.IsZero() && v.now().After(v.cfg.MintDeadline) {
		return ErrMintingClosed
	}
	return nil
}
