package assets

import (
	"errors"
	"math/big"
	"sync"

	"boost/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

var errInsufficientFunds = errors.New("insufficient native funds")
var errRecipientRejected = errors.New("recipient rejected native transfer")

// Receiver is notified when native currency arrives at its address. A
// non-nil error from the hook cancels the transfer, the way a rejecting
// recipient makes a value send fail.
type Receiver interface {
	ReceiveNative(from common.Address, amount *big.Int) error
}

// NativeLedger is the native-currency side of the asset platform: direct
// value transfers with recipient hooks. Hooks run synchronously on the
// sender's call stack, so a hostile recipient can attempt to re-enter the
// vault mid-payout.
type NativeLedger struct {
	mu        sync.Mutex
	balances  map[common.Address]*big.Int
	receivers map[common.Address]Receiver
	rejecting map[common.Address]bool
}

func NewNativeLedger() *NativeLedger {
	return &NativeLedger{
		balances:  make(map[common.Address]*big.Int),
		receivers: make(map[common.Address]Receiver),
		rejecting: make(map[common.Address]bool),
	}
}

func (l *NativeLedger) Mint(to common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(to, amount)
}

func (l *NativeLedger) BalanceOf(holder common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if balance, ok := l.balances[holder]; ok {
		return new(big.Int).Set(balance)
	}
	return new(big.Int)
}

// RegisterReceiver installs the hook invoked on transfers to addr.
func (l *NativeLedger) RegisterReceiver(addr common.Address, receiver Receiver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receivers[addr] = receiver
}

// SetRejecting marks addr as refusing all incoming native transfers.
func (l *NativeLedger) SetRejecting(addr common.Address, rejecting bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rejecting[addr] = rejecting
}

// Send moves value from one account to another. The funds are credited
// before the recipient hook runs; if the hook fails the transfer is undone
// and the hook's error is returned.
func (l *NativeLedger) Send(from, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	if amount == nil || amount.Sign() < 0 {
		l.mu.Unlock()
		return errInsufficientFunds
	}
	if l.rejecting[to] {
		l.mu.Unlock()
		return errRecipientRejected
	}
	balance, ok := l.balances[from]
	if !ok || balance.Cmp(amount) < 0 {
		l.mu.Unlock()
		return errInsufficientFunds
	}
	balance.Sub(balance, amount)
	l.credit(to, amount)
	receiver := l.receivers[to]
	l.mu.Unlock()

	if receiver == nil {
		return nil
	}
	// The hook runs without the ledger lock held so it can transact.
	if err := receiver.ReceiveNative(from, amount); err != nil {
		l.mu.Lock()
		l.balances[to].Sub(l.balances[to], amount)
		l.credit(from, amount)
		l.mu.Unlock()
		return err
	}
	return nil
}

func (l *NativeLedger) credit(to common.Address, amount *big.Int) {
	if balance, ok := l.balances[to]; ok {
		balance.Add(balance, amount)
		return
	}
	l.balances[to] = new(big.Int).Set(amount)
}

// NativeAdapter adapts the native ledger to the vault's transfer calls.
type NativeAdapter struct {
	Ledger *NativeLedger
}

func (a *NativeAdapter) BalanceOf(holder common.Address) *big.Int {
	return a.Ledger.BalanceOf(holder)
}

func (a *NativeAdapter) PayOut(from, to common.Address, amount *big.Int) error {
	if err := a.Ledger.Send(from, to, amount); err != nil {
		if errors.Is(err, domain.ErrNativeNotAccepted) {
			return err
		}
		return domain.ErrTransferFailed
	}
	return nil
}

func (a *NativeAdapter) PullIn(from, to common.Address, amount *big.Int) error {
	return a.PayOut(from, to, amount)
}
