package assets

import (
	"math/big"
	"sync"

	"boost/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// Adapter is the uniform transfer surface over both asset kinds.
type Adapter interface {
	BalanceOf(holder common.Address) *big.Int
	PayOut(from, to common.Address, amount *big.Int) error
	PullIn(from, to common.Address, amount *big.Int) error
}

// Platform holds the process-local stand-in for the external ledger/asset
// platform: one native-currency ledger and one token ledger per asset id.
type Platform struct {
	mu     sync.Mutex
	native *NativeLedger
	tokens map[common.Address]*TokenLedger
}

func NewPlatform() *Platform {
	return &Platform{
		native: NewNativeLedger(),
		tokens: make(map[common.Address]*TokenLedger),
	}
}

func (p *Platform) Native() *NativeLedger {
	return p.native
}

func (p *Platform) Token(asset common.Address) *TokenLedger {
	p.mu.Lock()
	defer p.mu.Unlock()
	ledger, ok := p.tokens[asset]
	if !ok {
		ledger = NewTokenLedger()
		p.tokens[asset] = ledger
	}
	return ledger
}

// AdapterFor returns the transfer adapter for an asset. The spender is the
// identity consuming allowances on funding pulls.
func (p *Platform) AdapterFor(asset, spender common.Address) Adapter {
	if domain.IsNative(asset) {
		return &NativeAdapter{Ledger: p.native}
	}
	return &TokenAdapter{Ledger: p.Token(asset), Spender: spender}
}

// Credit mints directly onto the platform, used when rehydrating persisted
// vault balances at startup.
func (p *Platform) Credit(asset, holder common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	if domain.IsNative(asset) {
		p.native.Mint(holder, amount)
		return
	}
	p.Token(asset).Mint(holder, amount)
}
