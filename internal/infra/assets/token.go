package assets

import (
	"math/big"
	"sync"

	"boost/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// TokenLedger is the fungible-token side of the asset platform: balances and
// allowances with approve/transfer/transferFrom semantics. Transfers report
// failure by returning false rather than an error, which is exactly the
// misbehavior the adapter has to be defensive about.
type TokenLedger struct {
	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int

	// When set, every transfer returns false without moving funds.
	failing bool
}

func NewTokenLedger() *TokenLedger {
	return &TokenLedger{
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (l *TokenLedger) Mint(to common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(to, amount)
}

func (l *TokenLedger) Approve(owner, spender common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	granted, ok := l.allowances[owner]
	if !ok {
		granted = make(map[common.Address]*big.Int)
		l.allowances[owner] = granted
	}
	granted[spender] = new(big.Int).Set(amount)
}

func (l *TokenLedger) Allowance(owner, spender common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if granted, ok := l.allowances[owner]; ok {
		if amount, ok := granted[spender]; ok {
			return new(big.Int).Set(amount)
		}
	}
	return new(big.Int)
}

func (l *TokenLedger) BalanceOf(holder common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if balance, ok := l.balances[holder]; ok {
		return new(big.Int).Set(balance)
	}
	return new(big.Int)
}

// SetFailing makes the token report failure on every transfer, simulating a
// token that returns false instead of reverting.
func (l *TokenLedger) SetFailing(failing bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failing = failing
}

func (l *TokenLedger) Transfer(from, to common.Address, amount *big.Int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failing {
		return false
	}
	return l.move(from, to, amount)
}

func (l *TokenLedger) TransferFrom(spender, from, to common.Address, amount *big.Int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failing {
		return false
	}
	granted, ok := l.allowances[from]
	if !ok {
		return false
	}
	allowance, ok := granted[spender]
	if !ok || allowance.Cmp(amount) < 0 {
		return false
	}
	if !l.move(from, to, amount) {
		return false
	}
	allowance.Sub(allowance, amount)
	return true
}

func (l *TokenLedger) move(from, to common.Address, amount *big.Int) bool {
	if amount == nil || amount.Sign() < 0 {
		return false
	}
	balance, ok := l.balances[from]
	if !ok || balance.Cmp(amount) < 0 {
		return false
	}
	balance.Sub(balance, amount)
	l.credit(to, amount)
	return true
}

func (l *TokenLedger) credit(to common.Address, amount *big.Int) {
	if balance, ok := l.balances[to]; ok {
		balance.Add(balance, amount)
		return
	}
	l.balances[to] = new(big.Int).Set(amount)
}

// TokenAdapter adapts a TokenLedger to the vault's pay-out/pull-in calls.
// Spender is the identity whose allowance is consumed on PullIn (the
// factory, for funding transfers).
type TokenAdapter struct {
	Ledger  *TokenLedger
	Spender common.Address
}

func (a *TokenAdapter) BalanceOf(holder common.Address) *big.Int {
	return a.Ledger.BalanceOf(holder)
}

func (a *TokenAdapter) PayOut(from, to common.Address, amount *big.Int) error {
	if !a.Ledger.Transfer(from, to, amount) {
		return domain.ErrTransferFailed
	}
	return nil
}

func (a *TokenAdapter) PullIn(from, to common.Address, amount *big.Int) error {
	if !a.Ledger.TransferFrom(a.Spender, from, to, amount) {
		return domain.ErrTransferFailed
	}
	return nil
}
