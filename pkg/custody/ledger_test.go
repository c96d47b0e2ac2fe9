package custody

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

var (
	vaultAcct = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	payer     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	recipient = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenA    = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenB    = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

// fakeAsset is an in-memory fungible asset with unlimited allowance unless
// one is set explicitly.
type fakeAsset struct {
	balances   map[common.Address]*uint256.Int
	allowance  *uint256.Int
	failNext   bool
	denyNext   bool
	onTransfer func()
}

func newFakeAsset(holder common.Address, balance uint64) *fakeAsset {
	return &fakeAsset{
		balances: map[common.Address]*uint256.Int{holder: uint256.NewInt(balance)},
	}
}

func (a *fakeAsset) Allowance(common.Address, common.Address) (*uint256.Int, error) {
	if a.allowance != nil {
		return a.allowance.Clone(), nil
	}
	return new(uint256.Int).SetAllOne(), nil
}

func (a *fakeAsset) BalanceOf(owner common.Address) (*uint256.Int, error) {
	if bal := a.balances[owner]; bal != nil {
		return bal.Clone(), nil
	}
	return uint256.NewInt(0), nil
}

func (a *fakeAsset) TransferFrom(from, to common.Address, amount *uint256.Int) (bool, error) {
	if a.failNext {
		a.failNext = false
		return false, fmt.Errorf("rpc timeout")
	}
	if a.denyNext {
		a.denyNext = false
		return false, nil
	}
	return a.move(from, to, amount)
}

func (a *fakeAsset) Transfer(to common.Address, amount *uint256.Int) (bool, error) {
	if a.onTransfer != nil {
		a.onTransfer()
	}
	if a.failNext {
		a.failNext = false
		return false, fmt.Errorf("rpc timeout")
	}
	if a.denyNext {
		a.denyNext = false
		return false, nil
	}
	return a.move(vaultAcct, to, amount)
}

func (a *fakeAsset) move(from, to common.Address, amount *uint256.Int) (bool, error) {
	bal := a.balances[from]
	if bal == nil || bal.Lt(amount) {
		return false, nil
	}
	bal.Sub(bal, amount)
	if a.balances[to] == nil {
		a.balances[to] = uint256.NewInt(0)
	}
	a.balances[to].Add(a.balances[to], amount)
	return true, nil
}

func testLedger(t *testing.T, feeBps uint64, assets map[common.Address]*fakeAsset) *Ledger {
	t.Helper()
	resolver := ResolverFunc(func(addr common.Address) (Asset, error) {
		if a, ok := assets[addr]; ok {
			return a, nil
		}
		return nil, ErrAssetUnavailable
	})
	return NewLedger(vaultAcct, feeBps, resolver, zap.NewNop())
}

func TestFeeIsFloored(t *testing.T) {
	l := testLedger(t, 25, nil)

	if fee := l.Fee(uint256.NewInt(10_000)); fee.Uint64() != 25 {
		t.Fatalf("expected fee 25 on 10000, got %s", fee.Dec())
	}
	// 399 * 25 / 10000 = 0.9975, floored to zero.
	if fee := l.Fee(uint256.NewInt(399)); !fee.IsZero() {
		t.Fatalf("expected zero fee on 399, got %s", fee.Dec())
	}
	if fee := l.Fee(uint256.NewInt(400)); fee.Uint64() != 1 {
		t.Fatalf("expected fee 1 on 400, got %s", fee.Dec())
	}
}

func TestDepositCreditsNetAndAccruesFee(t *testing.T) {
	asset := newFakeAsset(payer, 20_000)
	l := testLedger(t, 25, map[common.Address]*fakeAsset{tokenA: asset})

	if err := l.Deposit(1, tokenA, payer, uint256.NewInt(10_000)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	if bal := l.Balance(1, tokenA); bal.Uint64() != 10_000 {
		t.Fatalf("expected custody 10000, got %s", bal.Dec())
	}
	if fees := l.Fees(tokenA); fees.Uint64() != 25 {
		t.Fatalf("expected accrued fee 25, got %s", fees.Dec())
	}
	// Payer was charged net plus fee.
	if bal := asset.balances[payer]; bal.Uint64() != 20_000-10_025 {
		t.Fatalf("expected payer balance %d, got %s", 20_000-10_025, bal.Dec())
	}
	if bal := asset.balances[vaultAcct]; bal.Uint64() != 10_025 {
		t.Fatalf("expected vault balance 10025, got %s", bal.Dec())
	}
}

func TestDepositAdvisoryChecks(t *testing.T) {
	asset := newFakeAsset(payer, 20_000)
	l := testLedger(t, 25, map[common.Address]*fakeAsset{tokenA: asset})

	asset.allowance = uint256.NewInt(10_000) // less than net+fee
	err := l.Deposit(1, tokenA, payer, uint256.NewInt(10_000))
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}

	asset.allowance = nil
	err = l.Deposit(1, tokenA, payer, uint256.NewInt(50_000))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	if !l.Balance(1, tokenA).IsZero() {
		t.Fatal("failed deposits must not credit custody")
	}
}

func TestDepositTransferOutcomeIsAuthoritative(t *testing.T) {
	asset := newFakeAsset(payer, 20_000)
	l := testLedger(t, 25, map[common.Address]*fakeAsset{tokenA: asset})

	asset.denyNext = true
	if err := l.Deposit(1, tokenA, payer, uint256.NewInt(100)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed on false return, got %v", err)
	}
	asset.failNext = true
	if err := l.Deposit(1, tokenA, payer, uint256.NewInt(100)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed on error return, got %v", err)
	}
	if !l.Balance(1, tokenA).IsZero() || !l.Fees(tokenA).IsZero() {
		t.Fatal("failed transfers must leave no custody or fee state")
	}
}

func TestDepositUnknownAsset(t *testing.T) {
	l := testLedger(t, 25, nil)
	err := l.Deposit(1, tokenA, payer, uint256.NewInt(100))
	if !errors.Is(err, ErrAssetUnavailable) {
		t.Fatalf("expected ErrAssetUnavailable, got %v", err)
	}
}

func TestWithdrawDebitsBeforeExternalCall(t *testing.T) {
	asset := newFakeAsset(payer, 20_000)
	l := testLedger(t, 0, map[common.Address]*fakeAsset{tokenA: asset})
	if err := l.Deposit(1, tokenA, payer, uint256.NewInt(1_000)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	// A reentrant observer sees the custody record already reduced and the
	// outbound counter already bumped.
	asset.onTransfer = func() {
		if !l.Balance(1, tokenA).IsZero() {
			t.Errorf("expected custody debited before external transfer, got %s", l.Balance(1, tokenA).Dec())
		}
		if l.Withdrawals(1) != 1 {
			t.Errorf("expected withdrawal counter bumped before external transfer, got %d", l.Withdrawals(1))
		}
	}
	if err := l.Withdraw(1, tokenA, recipient, uint256.NewInt(1_000)); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if bal := asset.balances[recipient]; bal.Uint64() != 1_000 {
		t.Fatalf("expected recipient paid 1000, got %s", bal.Dec())
	}
	if l.AssetCount(1) != 0 {
		t.Fatalf("expected custody record cleaned up, got %d assets", l.AssetCount(1))
	}
}

func TestWithdrawRollsBackOnTransferFailure(t *testing.T) {
	asset := newFakeAsset(payer, 20_000)
	l := testLedger(t, 0, map[common.Address]*fakeAsset{tokenA: asset})
	if err := l.Deposit(1, tokenA, payer, uint256.NewInt(1_000)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	asset.failNext = true
	err := l.Withdraw(1, tokenA, recipient, uint256.NewInt(1_000))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if bal := l.Balance(1, tokenA); bal.Uint64() != 1_000 {
		t.Fatalf("expected custody restored to 1000, got %s", bal.Dec())
	}
	if l.Withdrawals(1) != 0 {
		t.Fatalf("expected withdrawal counter restored, got %d", l.Withdrawals(1))
	}
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	asset := newFakeAsset(payer, 20_000)
	l := testLedger(t, 0, map[common.Address]*fakeAsset{tokenA: asset})
	if err := l.Deposit(1, tokenA, payer, uint256.NewInt(500)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	err := l.Withdraw(1, tokenA, recipient, uint256.NewInt(501))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := l.Withdraw(2, tokenA, recipient, uint256.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance for unknown token, got %v", err)
	}
}

func TestAssetsOfKeepsDepositOrder(t *testing.T) {
	a := newFakeAsset(payer, 10_000)
	b := newFakeAsset(payer, 10_000)
	l := testLedger(t, 0, map[common.Address]*fakeAsset{tokenA: a, tokenB: b})

	if err := l.Deposit(1, tokenB, payer, uint256.NewInt(10)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if err := l.Deposit(1, tokenA, payer, uint256.NewInt(20)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if err := l.Deposit(1, tokenB, payer, uint256.NewInt(5)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	got := l.AssetsOf(1)
	if len(got) != 2 || got[0] != tokenB || got[1] != tokenA {
		t.Fatalf("unexpected asset order: %v", got)
	}
	if bal := l.Balance(1, tokenB); bal.Uint64() != 15 {
		t.Fatalf("expected merged balance 15, got %s", bal.Dec())
	}
}

func TestSweepFeesZeroAccrualIsANoOp(t *testing.T) {
	// No asset registered: a sweep with nothing accrued must not even
	// resolve the capability.
	l := testLedger(t, 25, nil)
	amount, err := l.SweepFees(tokenA, recipient)
	if err != nil {
		t.Fatalf("zero-accrual sweep failed: %v", err)
	}
	if !amount.IsZero() {
		t.Fatalf("expected zero sweep, got %s", amount.Dec())
	}
}

func TestSweepFeesPaysAndZeroes(t *testing.T) {
	asset := newFakeAsset(payer, 20_000)
	l := testLedger(t, 25, map[common.Address]*fakeAsset{tokenA: asset})
	if err := l.Deposit(1, tokenA, payer, uint256.NewInt(10_000)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	amount, err := l.SweepFees(tokenA, recipient)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if amount.Uint64() != 25 {
		t.Fatalf("expected swept 25, got %s", amount.Dec())
	}
	if !l.Fees(tokenA).IsZero() {
		t.Fatal("expected accrual zeroed after sweep")
	}
	if bal := asset.balances[recipient]; bal.Uint64() != 25 {
		t.Fatalf("expected recipient paid 25, got %s", bal.Dec())
	}
}

func TestSweepFeesRestoresAccrualOnFailure(t *testing.T) {
	asset := newFakeAsset(payer, 20_000)
	l := testLedger(t, 25, map[common.Address]*fakeAsset{tokenA: asset})
	if err := l.Deposit(1, tokenA, payer, uint256.NewInt(10_000)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	asset.denyNext = true
	if _, err := l.SweepFees(tokenA, recipient); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if fees := l.Fees(tokenA); fees.Uint64() != 25 {
		t.Fatalf("expected accrual restored to 25, got %s", fees.Dec())
	}
}
