package usecase

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"boost/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const (
	// Window bounds, in seconds.
	MaxDuration    uint64 = 365 * 24 * 60 * 60
	MaxStartOffset uint64 = 90 * 24 * 60 * 60
)

// Vault is one distribution campaign: an asset pool, a recipient-allowlist
// commitment, a claim window, and the monotonic per-account claim ledger.
// Asset, owner and operator are fixed at creation; root and window are
// operator-mutable; claimed amounts only grow.
//
// Mutating operations serialize on opMu. Across the external transfer the
// busy flag is set and the state mutex is released: a recipient delivery
// hook can read vault state mid-payout, while any mutating call arriving
// during the transfer fails fast with ErrReentrancy instead of deadlocking
// or observing a half-applied claim.
type Vault struct {
	id       common.Address
	asset    common.Address
	owner    common.Address
	operator common.Address

	adapter  AssetAdapter
	verifier ProofVerifier
	events   EventSink
	store    VaultStore
	clock    func() time.Time
	log      *logrus.Entry

	opMu sync.Mutex  // serializes mutating operations end to end
	busy atomic.Bool // set while the payout transfer is in flight

	mu           sync.Mutex // guards the fields below
	root         common.Hash
	window       domain.Window
	claimed      map[common.Address]*big.Int
	totalClaimed *big.Int
}

type VaultConfig struct {
	ID       common.Address
	Asset    common.Address
	Owner    common.Address
	Operator common.Address
	Adapter  AssetAdapter
	Verifier ProofVerifier
	Events   EventSink
	Store    VaultStore
	Clock    func() time.Time
	Log      *logrus.Entry
}

func NewVault(cfg VaultConfig) *Vault {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = logrus.WithField("component", "vault")
	}
	return &Vault{
		id:           cfg.ID,
		asset:        cfg.Asset,
		owner:        cfg.Owner,
		operator:     cfg.Operator,
		adapter:      cfg.Adapter,
		verifier:     cfg.Verifier,
		events:       cfg.Events,
		store:        cfg.Store,
		clock:        cfg.Clock,
		log:          cfg.Log.WithField("vault", cfg.ID.Hex()),
		claimed:      make(map[common.Address]*big.Int),
		totalClaimed: new(big.Int),
	}
}

// SetWindow arms or re-arms the distribution window. Re-arming is permitted
// before the existing window starts and after it ends, never while it is
// active.
func (v *Vault) SetWindow(ctx context.Context, caller common.Address, start, duration uint64) error {
	if v.busy.Load() {
		return domain.ErrReentrancy
	}
	v.opMu.Lock()
	defer v.opMu.Unlock()

	if caller != v.operator {
		return domain.ErrOnlyOperator
	}
	if duration == 0 || duration > MaxDuration {
		return domain.ErrInvalidDuration
	}
	now := v.now()
	if start <= now || start > now+MaxStartOffset {
		return domain.ErrInvalidTime
	}

	v.mu.Lock()
	if v.window.IsActive(now) {
		v.mu.Unlock()
		return domain.ErrAlreadyActive
	}
	v.window = domain.Window{Start: start, End: start + duration}
	window := v.window
	v.mu.Unlock()

	v.emit(ctx, domain.Event{
		Type:    domain.EventWindowSet,
		VaultID: v.id,
		Window:  &window,
	})
	v.persist(ctx)
	return nil
}

// SetRoot replaces the allowlist commitment. Claimed amounts persist across
// root changes; this is how incremental distribution rounds are introduced.
func (v *Vault) SetRoot(ctx context.Context, caller common.Address, root common.Hash) error {
	if v.busy.Load() {
		return domain.ErrReentrancy
	}
	v.opMu.Lock()
	defer v.opMu.Unlock()

	if caller != v.operator {
		return domain.ErrOnlyOperator
	}
	if root == (common.Hash{}) {
		return domain.ErrInvalidRoot
	}

	v.mu.Lock()
	v.root = root
	v.mu.Unlock()

	v.emit(ctx, domain.Event{
		Type:    domain.EventRootSet,
		VaultID: v.id,
		Root:    root,
	})
	v.persist(ctx)
	return nil
}

// Claim verifies the claimant's allotment and pays out the delta above what
// was already claimed. Ledger state is updated before the transfer; a failed
// transfer rolls the update back so no partial state survives.
func (v *Vault) Claim(ctx context.Context, claimant common.Address, maxAmount *big.Int, proof []common.Hash) (*domain.ClaimReceipt, error) {
	if v.busy.Load() {
		return nil, domain.ErrReentrancy
	}
	v.opMu.Lock()
	defer v.opMu.Unlock()

	already, delta, err := v.reserveClaim(claimant, maxAmount, proof)
	if err != nil {
		return nil, err
	}

	// The ledger update is committed and the state mutex released before the
	// transfer runs, so a delivery hook observes the post-claim ledger.
	v.busy.Store(true)
	err = v.adapter.PayOut(v.id, claimant, delta)
	v.busy.Store(false)
	if err != nil {
		v.rollbackClaim(claimant, already, delta)
		return nil, err
	}

	v.emit(ctx, domain.Event{
		Type:    domain.EventClaimed,
		VaultID: v.id,
		Account: claimant,
		Amount:  new(big.Int).Set(delta),
	})
	v.persistClaim(ctx, claimant)
	v.persist(ctx)

	return &domain.ClaimReceipt{
		VaultID:          v.id,
		Claimant:         claimant,
		Delta:            delta,
		CumulativeAmount: new(big.Int).Set(maxAmount),
	}, nil
}

// reserveClaim runs the claim gates and applies the ledger update, returning
// the prior amount so a failed transfer can be rolled back.
func (v *Vault) reserveClaim(claimant common.Address, maxAmount *big.Int, proof []common.Hash) (already, delta *big.Int, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	if v.window.Start == 0 {
		return nil, nil, domain.ErrStartNotSet
	}
	if now < v.window.Start {
		return nil, nil, domain.ErrTooEarly
	}
	if now > v.window.End {
		return nil, nil, domain.ErrTooLate
	}
	if v.root == (common.Hash{}) {
		return nil, nil, domain.ErrNoRoot
	}

	already = v.claimedLocked(claimant)
	if maxAmount == nil || maxAmount.Cmp(already) <= 0 {
		return nil, nil, domain.ErrInvalidAmount
	}
	leaf := v.verifier.LeafHash(claimant, maxAmount)
	if !v.verifier.Verify(proof, v.root, leaf) {
		return nil, nil, domain.ErrInvalidProof
	}

	delta = new(big.Int).Sub(maxAmount, already)
	v.claimed[claimant] = new(big.Int).Set(maxAmount)
	v.totalClaimed.Add(v.totalClaimed, delta)
	return already, delta, nil
}

func (v *Vault) rollbackClaim(claimant common.Address, already, delta *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if already.Sign() == 0 {
		delete(v.claimed, claimant)
	} else {
		v.claimed[claimant] = already
	}
	v.totalClaimed.Sub(v.totalClaimed, delta)
}

// Withdraw drains the vault's entire remaining balance to the owner. It is
// blocked while a configured window has not yet expired; a vault whose
// window was never configured is always withdrawable.
func (v *Vault) Withdraw(ctx context.Context) (*big.Int, error) {
	return v.WithdrawAs(ctx, v.owner)
}

func (v *Vault) WithdrawAs(ctx context.Context, caller common.Address) (*big.Int, error) {
	if v.busy.Load() {
		return nil, domain.ErrReentrancy
	}
	v.opMu.Lock()
	defer v.opMu.Unlock()

	if caller != v.owner {
		return nil, domain.ErrOnlyOwner
	}
	v.mu.Lock()
	end := v.window.End
	v.mu.Unlock()
	if v.now() <= end {
		return nil, domain.ErrInvalidTime
	}
	balance := v.adapter.BalanceOf(v.id)
	if balance.Sign() == 0 {
		return nil, domain.ErrNoTokens
	}

	v.busy.Store(true)
	err := v.adapter.PayOut(v.id, v.owner, balance)
	v.busy.Store(false)
	if err != nil {
		return nil, err
	}

	v.emit(ctx, domain.Event{
		Type:    domain.EventWithdrawn,
		VaultID: v.id,
		Account: v.owner,
		Amount:  new(big.Int).Set(balance),
	})
	v.persist(ctx)
	return balance, nil
}

// ReceiveNative is the native ledger's delivery hook. A token-asset vault
// refuses unsolicited native currency; a native-asset vault accepts any
// send, including plain top-ups.
func (v *Vault) ReceiveNative(from common.Address, amount *big.Int) error {
	if !domain.IsNative(v.asset) {
		return domain.ErrNativeNotAccepted
	}
	return nil
}

func (v *Vault) ID() common.Address       { return v.id }
func (v *Vault) Asset() common.Address    { return v.asset }
func (v *Vault) Owner() common.Address    { return v.owner }
func (v *Vault) Operator() common.Address { return v.operator }

func (v *Vault) Root() common.Hash {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.root
}

func (v *Vault) Window() domain.Window {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.window
}

func (v *Vault) TotalClaimed() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.totalClaimed)
}

func (v *Vault) ClaimedOf(account common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.claimedLocked(account)
}

func (v *Vault) Balance() *big.Int {
	return v.adapter.BalanceOf(v.id)
}

func (v *Vault) Info() domain.VaultInfo {
	v.mu.Lock()
	defer v.mu.Unlock()
	return domain.VaultInfo{
		ID:           v.id,
		Asset:        v.asset,
		Owner:        v.owner,
		Operator:     v.operator,
		Root:         v.root,
		Window:       v.window,
		TotalClaimed: new(big.Int).Set(v.totalClaimed),
		Balance:      v.adapter.BalanceOf(v.id),
	}
}

// RestoreState loads persisted ledger state into a freshly constructed
// vault during startup rehydration.
func (v *Vault) RestoreState(root common.Hash, window domain.Window, claims map[common.Address]*big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.root = root
	v.window = window
	v.claimed = make(map[common.Address]*big.Int, len(claims))
	v.totalClaimed = new(big.Int)
	for account, amount := range claims {
		v.claimed[account] = new(big.Int).Set(amount)
		v.totalClaimed.Add(v.totalClaimed, amount)
	}
}

func (v *Vault) claimedLocked(account common.Address) *big.Int {
	if amount, ok := v.claimed[account]; ok {
		return new(big.Int).Set(amount)
	}
	return new(big.Int)
}

func (v *Vault) now() uint64 {
	return uint64(v.clock().Unix())
}

func (v *Vault) emit(ctx context.Context, event domain.Event) {
	event.At = v.clock().UTC()
	if v.events != nil {
		if err := v.events.Emit(ctx, event); err != nil {
			v.log.WithError(err).WithField("event", event.Type).Warn("event emit failed")
		}
	}
	if v.store != nil {
		if err := v.store.AppendEvent(ctx, event); err != nil {
			v.log.WithError(err).WithField("event", event.Type).Warn("event append failed")
		}
	}
}

func (v *Vault) persist(ctx context.Context) {
	if v.store == nil {
		return
	}
	if err := v.store.SaveVault(ctx, v.Info()); err != nil {
		v.log.WithError(err).Warn("vault persist failed")
	}
}

func (v *Vault) persistClaim(ctx context.Context, account common.Address) {
	if v.store == nil {
		return
	}
	if err := v.store.SaveClaim(ctx, v.id, account, v.ClaimedOf(account)); err != nil {
		v.log.WithError(err).WithField("account", account.Hex()).Warn("claim persist failed")
	}
}
