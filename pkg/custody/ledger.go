// Package custody is the internal asset ledger: per-token balances of
// deposited fungible assets plus the protocol fee accrual. Value enters only
// through a deposit-on-mint and leaves only through a withdraw-on-burn or a
// fee sweep, so for every asset the sum of custody balances plus collected
// fees equals the asset balance held by the vault account.
package custody

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/chainsafe/relicvault/pkg/token"
)

var (
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrTransferFailed        = errors.New("asset transfer failed")
	ErrAssetUnavailable      = errors.New("asset capability unavailable")
)

const feeDenominator = 10_000

// Asset is the external fungible-asset capability. A false success return
// and an error return are treated identically: TransferFailed. The
// allowance/balance reads are advisory fast-fail checks only; the transfer's
// own outcome is authoritative.
type Asset interface {
	Allowance(owner, spender common.Address) (*uint256.Int, error)
	BalanceOf(owner common.Address) (*uint256.Int, error)
	TransferFrom(from, to common.Address, amount *uint256.Int) (bool, error)
	Transfer(to common.Address, amount *uint256.Int) (bool, error)
}

// Resolver locates the capability for an asset address.
type Resolver interface {
	Asset(addr common.Address) (Asset, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(addr common.Address) (Asset, error)

func (f ResolverFunc) Asset(addr common.Address) (Asset, error) { return f(addr) }

// Ledger holds the custody records. Not safe for concurrent use; the vault
// serializes access.
type Ledger struct {
	self     common.Address
	feeBps   uint64
	resolver Resolver
	logger   *zap.Logger

	balances map[uint64]map[common.Address]*uint256.Int
	// assetsOf keeps, per token, the ordered list of assets with a live
	// custody record so burns pay out deterministically.
	assetsOf    map[uint64][]common.Address
	fees        map[common.Address]*uint256.Int
	withdrawals map[uint64]uint64
}

// NewLedger creates a custody ledger. self is the vault's own account, the
// holder of all deposited value. feeBps is the protocol fee in basis points.
func NewLedger(self common.Address, feeBps uint64, resolver Resolver, logger *zap.Logger) *Ledger {
	return &Ledger{
		self:        self,
		feeBps:      feeBps,
		resolver:    resolver,
		logger:      logger,
		balances:    make(map[uint64]map[common.Address]*uint256.Int),
		assetsOf:    make(map[uint64][]common.Address),
		fees:        make(map[common.Address]*uint256.Int),
		withdrawals: make(map[uint64]uint64),
	}
}

// Fee returns floor(net * feeBps / 10000). Integer truncation means small
// deposits can carry a zero fee.
func (l *Ledger) Fee(net *uint256.Int) *uint256.Int {
	fee := new(uint256.Int).Mul(net, uint256.NewInt(l.feeBps))
	return fee.Div(fee, uint256.NewInt(feeDenominator))
}

// Deposit pulls net+fee of an asset from payer into the vault account and
// credits net to the token's custody record and fee to the accrual.
func (l *Ledger) Deposit(tokenID uint64, asset, payer common.Address, net *uint256.Int) error {
	ac, err := l.resolver.Asset(asset)
	if err != nil {
		return errors.Join(ErrAssetUnavailable, err)
	}

	fee := l.Fee(net)
	total := new(uint256.Int).Add(net, fee)

	// Advisory pre-checks. The transferFrom outcome below is what decides.
	if allowance, err := ac.Allowance(payer, l.self); err == nil && allowance.Lt(total) {
		return ErrInsufficientAllowance
	}
	if balance, err := ac.BalanceOf(payer); err == nil && balance.Lt(total) {
		return ErrInsufficientBalance
	}

	ok, err := ac.TransferFrom(payer, l.self, total)
	if err != nil || !ok {
		if err != nil {
			return errors.Join(ErrTransferFailed, err)
		}
		return ErrTransferFailed
	}

	l.credit(tokenID, asset, net)
	l.accrue(asset, fee)

	l.logger.Debug("Custody deposit",
		zap.Uint64("token_id", tokenID),
		zap.String("asset", asset.Hex()),
		zap.String("net", net.Dec()),
		zap.String("fee", fee.Dec()))
	return nil
}

// Withdraw pays amount of an asset from a token's custody record to
// recipient. The record is decremented and the outbound counter bumped
// before the external transfer is invoked, so a reentrant call from a
// malicious asset observes the balance already reduced. If the external
// transfer then fails, the decrement is undone and the whole operation fails.
func (l *Ledger) Withdraw(tokenID uint64, asset, recipient common.Address, amount *uint256.Int) error {
	bal := l.balances[tokenID][asset]
	if bal == nil || bal.Lt(amount) {
		return ErrInsufficientBalance
	}
	ac, err := l.resolver.Asset(asset)
	if err != nil {
		return errors.Join(ErrAssetUnavailable, err)
	}

	l.debit(tokenID, asset, amount)
	l.withdrawals[tokenID]++

	ok, err := ac.Transfer(recipient, amount)
	if err != nil || !ok {
		l.credit(tokenID, asset, amount)
		l.withdrawals[tokenID]--
		if err != nil {
			return errors.Join(ErrTransferFailed, err)
		}
		return ErrTransferFailed
	}

	l.logger.Debug("Custody withdrawal",
		zap.Uint64("token_id", tokenID),
		zap.String("asset", asset.Hex()),
		zap.String("amount", amount.Dec()),
		zap.String("recipient", recipient.Hex()))
	return nil
}

// SweepFees pays the accrued fee balance of an asset to recipient and zeroes
// the accrual. A zero accrual is a successful no-op without an external
// call; some asset implementations fail zero-value transfers.
func (l *Ledger) SweepFees(asset, recipient common.Address) (*uint256.Int, error) {
	accrued := l.fees[asset]
	if accrued == nil || accrued.IsZero() {
		return uint256.NewInt(0), nil
	}
	ac, err := l.resolver.Asset(asset)
	if err != nil {
		return nil, errors.Join(ErrAssetUnavailable, err)
	}

	amount := accrued.Clone()
	delete(l.fees, asset)

	ok, err := ac.Transfer(recipient, amount)
	if err != nil || !ok {
		l.fees[asset] = amount
		if err != nil {
			return nil, errors.Join(ErrTransferFailed, err)
		}
		return nil, ErrTransferFailed
	}
	return amount, nil
}

// Balance returns the custody record for (token, asset). Zero if absent.
func (l *Ledger) Balance(tokenID uint64, asset common.Address) *uint256.Int {
	if bal := l.balances[tokenID][asset]; bal != nil {
		return bal.Clone()
	}
	return uint256.NewInt(0)
}

// AssetsOf returns the assets with a live custody record for a token, in
// deposit order.
func (l *Ledger) AssetsOf(tokenID uint64) []common.Address {
	out := make([]common.Address, len(l.assetsOf[tokenID]))
	copy(out, l.assetsOf[tokenID])
	return out
}

// AssetCount returns the number of live custody records for a token.
func (l *Ledger) AssetCount(tokenID uint64) int {
	return len(l.assetsOf[tokenID])
}

// Balances returns all custody records of a token.
func (l *Ledger) Balances(tokenID uint64) []token.CustodyBalance {
	assets := l.assetsOf[tokenID]
	out := make([]token.CustodyBalance, 0, len(assets))
	for _, a := range assets {
		out = append(out, token.CustodyBalance{Asset: a, Amount: l.balances[tokenID][a].Clone()})
	}
	return out
}

// Fees returns the accrued fee balance for an asset.
func (l *Ledger) Fees(asset common.Address) *uint256.Int {
	if f := l.fees[asset]; f != nil {
		return f.Clone()
	}
	return uint256.NewInt(0)
}

// Withdrawals returns the per-token outbound transfer counter.
func (l *Ledger) Withdrawals(tokenID uint64) uint64 {
	return l.withdrawals[tokenID]
}

func (l *Ledger) credit(tokenID uint64, asset common.Address, amount *uint256.Int) {
	if amount.IsZero() {
		return
	}
	recs := l.balances[tokenID]
	if recs == nil {
		recs = make(map[common.Address]*uint256.Int)
		l.balances[tokenID] = recs
	}
	if bal := recs[asset]; bal != nil {
		bal.Add(bal, amount)
		return
	}
	recs[asset] = amount.Clone()
	l.assetsOf[tokenID] = append(l.assetsOf[tokenID], asset)
}

func (l *Ledger) debit(tokenID uint64, asset common.Address, amount *uint256.Int) {
	bal := l.balances[tokenID][asset]
	bal.Sub(bal, amount)
	if !bal.IsZero() {
		return
	}
	delete(l.balances[tokenID], asset)
	held := l.assetsOf[tokenID]
	for i, a := range held {
		if a == asset {
			l.assetsOf[tokenID] = append(held[:i], held[i+1:]...)
			break
		}
	}
	if len(l.assetsOf[tokenID]) == 0 {
		delete(l.assetsOf, tokenID)
		delete(l.balances, tokenID)
	}
}

func (l *Ledger) accrue(asset common.Address, fee *uint256.Int) {
	if fee.IsZero() {
		return
	}
	if f := l.fees[asset]; f != nil {
		f.Add(f, fee)
		return
	}
	l.fees[asset] = fee.Clone()
}
