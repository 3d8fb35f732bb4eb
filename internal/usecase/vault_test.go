package usecase

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"boost/internal/domain"
	"boost/internal/infra/assets"
	"boost/internal/infra/events"
	"boost/internal/infra/merkle"

	"github.com/ethereum/go-ethereum/common"
)

var (
	vaultAddr = common.HexToAddress("0x2000000000000000000000000000000000000001")
	owner     = common.HexToAddress("0x2000000000000000000000000000000000000002")
	operator  = common.HexToAddress("0x2000000000000000000000000000000000000003")
	alice     = common.HexToAddress("0x2000000000000000000000000000000000000004")
	bob       = common.HexToAddress("0x2000000000000000000000000000000000000005")
	carol     = common.HexToAddress("0x2000000000000000000000000000000000000006")
	tokenAddr = common.HexToAddress("0x2000000000000000000000000000000000000007")
)

type vaultHarness struct {
	platform *assets.Platform
	vault    *Vault
	sink     *events.MemorySink
	now      uint64
	asset    common.Address
}

func newTokenVaultHarness(t *testing.T, funding int64) *vaultHarness {
	t.Helper()
	return newVaultHarness(t, tokenAddr, funding)
}

func newNativeVaultHarness(t *testing.T, funding int64) *vaultHarness {
	t.Helper()
	return newVaultHarness(t, domain.NativeAsset, funding)
}

func newVaultHarness(t *testing.T, asset common.Address, funding int64) *vaultHarness {
	t.Helper()
	h := &vaultHarness{
		platform: assets.NewPlatform(),
		sink:     events.NewMemorySink(0),
		now:      1_700_000_000,
		asset:    asset,
	}
	h.platform.Credit(asset, vaultAddr, big.NewInt(funding))
	h.vault = NewVault(VaultConfig{
		ID:       vaultAddr,
		Asset:    asset,
		Owner:    owner,
		Operator: operator,
		Adapter:  h.platform.AdapterFor(asset, domain.FundingSpender),
		Verifier: &merkle.Service{},
		Events:   h.sink,
		Clock:    func() time.Time { return time.Unix(int64(h.now), 0) },
	})
	h.platform.Native().RegisterReceiver(vaultAddr, h.vault)
	return h
}

func (h *vaultHarness) arm(t *testing.T, tree *merkle.Tree, startDelay, duration uint64) {
	t.Helper()
	ctx := context.Background()
	if err := h.vault.SetWindow(ctx, operator, h.now+startDelay, duration); err != nil {
		t.Fatalf("set window: %v", err)
	}
	if err := h.vault.SetRoot(ctx, operator, tree.Root()); err != nil {
		t.Fatalf("set root: %v", err)
	}
	h.now += startDelay
}

func buildTree(t *testing.T, entries ...merkle.Entry) *merkle.Tree {
	t.Helper()
	tree, err := merkle.Build(entries)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	return tree
}

func proofFor(t *testing.T, tree *merkle.Tree, account common.Address, amount int64) []common.Hash {
	t.Helper()
	proof, err := tree.Proof(account, big.NewInt(amount))
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	return proof
}

func TestSetWindowValidation(t *testing.T) {
	h := newTokenVaultHarness(t, 1000)
	ctx := context.Background()

	tests := []struct {
		name     string
		caller   common.Address
		start    uint64
		duration uint64
		want     error
	}{
		{"not operator", owner, h.now + 100, 100, domain.ErrOnlyOperator},
		{"zero duration", operator, h.now + 100, 0, domain.ErrInvalidDuration},
		{"duration above max", operator, h.now + 100, MaxDuration + 1, domain.ErrInvalidDuration},
		{"start in past", operator, h.now - 1, 100, domain.ErrInvalidTime},
		{"start now", operator, h.now, 100, domain.ErrInvalidTime},
		{"start beyond offset", operator, h.now + MaxStartOffset + 1, 100, domain.ErrInvalidTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.vault.SetWindow(ctx, tt.caller, tt.start, tt.duration); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}

	// Boundary values are accepted.
	if err := h.vault.SetWindow(ctx, operator, h.now+MaxStartOffset, MaxDuration); err != nil {
		t.Fatalf("boundary window: %v", err)
	}
}

func TestSetWindowRearm(t *testing.T) {
	h := newTokenVaultHarness(t, 1000)
	ctx := context.Background()

	if err := h.vault.SetWindow(ctx, operator, h.now+100, 100); err != nil {
		t.Fatalf("arm: %v", err)
	}
	// Before the window opens the operator can still move it.
	if err := h.vault.SetWindow(ctx, operator, h.now+200, 100); err != nil {
		t.Fatalf("re-arm before start: %v", err)
	}

	h.now += 250 // inside [start, end]
	if err := h.vault.SetWindow(ctx, operator, h.now+100, 100); !errors.Is(err, domain.ErrAlreadyActive) {
		t.Fatalf("got %v, want ErrAlreadyActive", err)
	}

	h.now += 100 // past end
	if err := h.vault.SetWindow(ctx, operator, h.now+100, 100); err != nil {
		t.Fatalf("re-arm after end: %v", err)
	}
}

func TestSetRootValidation(t *testing.T) {
	h := newTokenVaultHarness(t, 1000)
	ctx := context.Background()

	if err := h.vault.SetRoot(ctx, alice, common.HexToHash("0x01")); !errors.Is(err, domain.ErrOnlyOperator) {
		t.Fatalf("got %v, want ErrOnlyOperator", err)
	}
	if err := h.vault.SetRoot(ctx, operator, common.Hash{}); !errors.Is(err, domain.ErrInvalidRoot) {
		t.Fatalf("got %v, want ErrInvalidRoot", err)
	}
	root := common.HexToHash("0xabcdef")
	if err := h.vault.SetRoot(ctx, operator, root); err != nil {
		t.Fatalf("set root: %v", err)
	}
	if h.vault.Root() != root {
		t.Fatal("root not installed")
	}
}

func TestClaimGates(t *testing.T) {
	h := newTokenVaultHarness(t, 1000)
	ctx := context.Background()
	tree := buildTree(t, merkle.Entry{Account: alice, MaxAmount: big.NewInt(600)})
	proof := proofFor(t, tree, alice, 600)

	// No window configured.
	if _, err := h.vault.Claim(ctx, alice, big.NewInt(600), proof); !errors.Is(err, domain.ErrStartNotSet) {
		t.Fatalf("got %v, want ErrStartNotSet", err)
	}

	if err := h.vault.SetWindow(ctx, operator, h.now+100, 1000); err != nil {
		t.Fatalf("set window: %v", err)
	}
	if _, err := h.vault.Claim(ctx, alice, big.NewInt(600), proof); !errors.Is(err, domain.ErrTooEarly) {
		t.Fatalf("got %v, want ErrTooEarly", err)
	}

	// Window open but no root committed yet.
	h.now += 100
	if _, err := h.vault.Claim(ctx, alice, big.NewInt(600), proof); !errors.Is(err, domain.ErrNoRoot) {
		t.Fatalf("got %v, want ErrNoRoot", err)
	}

	if err := h.vault.SetRoot(ctx, operator, tree.Root()); err != nil {
		t.Fatalf("set root: %v", err)
	}
	h.now += 1001
	if _, err := h.vault.Claim(ctx, alice, big.NewInt(600), proof); !errors.Is(err, domain.ErrTooLate) {
		t.Fatalf("got %v, want ErrTooLate", err)
	}
}

func TestClaimPaysOutAndIsMonotonic(t *testing.T) {
	h := newTokenVaultHarness(t, 1000)
	ctx := context.Background()
	tree := buildTree(t,
		merkle.Entry{Account: alice, MaxAmount: big.NewInt(600)},
		merkle.Entry{Account: bob, MaxAmount: big.NewInt(300)},
		merkle.Entry{Account: carol, MaxAmount: big.NewInt(100)},
	)
	h.arm(t, tree, 10, 1000)

	receipt, err := h.vault.Claim(ctx, alice, big.NewInt(600), proofFor(t, tree, alice, 600))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if receipt.Delta.Int64() != 600 || receipt.CumulativeAmount.Int64() != 600 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if got := h.platform.Token(tokenAddr).BalanceOf(alice).Int64(); got != 600 {
		t.Fatalf("alice balance = %d, want 600", got)
	}
	if got := h.vault.TotalClaimed().Int64(); got != 600 {
		t.Fatalf("total claimed = %d, want 600", got)
	}

	// Same allotment again: nothing left to claim.
	if _, err := h.vault.Claim(ctx, alice, big.NewInt(600), proofFor(t, tree, alice, 600)); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("got %v, want ErrInvalidAmount", err)
	}

	// A proof for someone else's allotment does not verify.
	if _, err := h.vault.Claim(ctx, bob, big.NewInt(300), proofFor(t, tree, alice, 600)); !errors.Is(err, domain.ErrInvalidProof) {
		t.Fatalf("got %v, want ErrInvalidProof", err)
	}
	// Claiming more than the committed allotment does not verify either.
	if _, err := h.vault.Claim(ctx, bob, big.NewInt(400), proofFor(t, tree, bob, 300)); !errors.Is(err, domain.ErrInvalidProof) {
		t.Fatalf("got %v, want ErrInvalidProof", err)
	}

	if _, err := h.vault.Claim(ctx, bob, big.NewInt(300), proofFor(t, tree, bob, 300)); err != nil {
		t.Fatalf("bob claim: %v", err)
	}
	if got := h.vault.Balance().Int64(); got != 100 {
		t.Fatalf("vault balance = %d, want 100", got)
	}
}

func TestClaimIncrementalRounds(t *testing.T) {
	h := newTokenVaultHarness(t, 1000)
	ctx := context.Background()

	round1 := buildTree(t,
		merkle.Entry{Account: alice, MaxAmount: big.NewInt(500)},
		merkle.Entry{Account: bob, MaxAmount: big.NewInt(200)},
	)
	h.arm(t, round1, 10, 10000)

	if _, err := h.vault.Claim(ctx, alice, big.NewInt(500), proofFor(t, round1, alice, 500)); err != nil {
		t.Fatalf("round 1 claim: %v", err)
	}

	// A new root raises alice's allotment; claimed amounts carry over so
	// only the delta is paid.
	round2 := buildTree(t,
		merkle.Entry{Account: alice, MaxAmount: big.NewInt(800)},
		merkle.Entry{Account: bob, MaxAmount: big.NewInt(200)},
	)
	if err := h.vault.SetRoot(ctx, operator, round2.Root()); err != nil {
		t.Fatalf("rotate root: %v", err)
	}

	// The old proof no longer verifies against the new root.
	if _, err := h.vault.Claim(ctx, alice, big.NewInt(500), proofFor(t, round1, alice, 500)); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("got %v, want ErrInvalidAmount", err)
	}

	receipt, err := h.vault.Claim(ctx, alice, big.NewInt(800), proofFor(t, round2, alice, 800))
	if err != nil {
		t.Fatalf("round 2 claim: %v", err)
	}
	if receipt.Delta.Int64() != 300 {
		t.Fatalf("delta = %d, want 300", receipt.Delta.Int64())
	}
	if got := h.platform.Token(tokenAddr).BalanceOf(alice).Int64(); got != 800 {
		t.Fatalf("alice balance = %d, want 800", got)
	}
	if got := h.vault.ClaimedOf(alice).Int64(); got != 800 {
		t.Fatalf("claimed = %d, want 800", got)
	}
}

func TestClaimRollbackOnTransferFailure(t *testing.T) {
	h := newTokenVaultHarness(t, 1000)
	ctx := context.Background()
	tree := buildTree(t, merkle.Entry{Account: alice, MaxAmount: big.NewInt(600)})
	h.arm(t, tree, 10, 1000)

	h.platform.Token(tokenAddr).SetFailing(true)
	if _, err := h.vault.Claim(ctx, alice, big.NewInt(600), proofFor(t, tree, alice, 600)); !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}

	// The failed claim left no trace.
	if got := h.vault.ClaimedOf(alice).Int64(); got != 0 {
		t.Fatalf("claimed = %d, want 0", got)
	}
	if got := h.vault.TotalClaimed().Int64(); got != 0 {
		t.Fatalf("total claimed = %d, want 0", got)
	}

	// And the claimant can succeed once the token recovers.
	h.platform.Token(tokenAddr).SetFailing(false)
	if _, err := h.vault.Claim(ctx, alice, big.NewInt(600), proofFor(t, tree, alice, 600)); err != nil {
		t.Fatalf("retry claim: %v", err)
	}
	if got := h.vault.ClaimedOf(alice).Int64(); got != 600 {
		t.Fatalf("claimed = %d, want 600", got)
	}
}

func TestClaimRollbackKeepsPriorAmount(t *testing.T) {
	h := newTokenVaultHarness(t, 1000)
	ctx := context.Background()

	round1 := buildTree(t, merkle.Entry{Account: alice, MaxAmount: big.NewInt(500)})
	h.arm(t, round1, 10, 10000)
	if _, err := h.vault.Claim(ctx, alice, big.NewInt(500), proofFor(t, round1, alice, 500)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	round2 := buildTree(t, merkle.Entry{Account: alice, MaxAmount: big.NewInt(800)})
	if err := h.vault.SetRoot(ctx, operator, round2.Root()); err != nil {
		t.Fatalf("rotate root: %v", err)
	}

	h.platform.Token(tokenAddr).SetFailing(true)
	if _, err := h.vault.Claim(ctx, alice, big.NewInt(800), proofFor(t, round2, alice, 800)); !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}

	// Rollback restores the round-1 amount, not zero.
	if got := h.vault.ClaimedOf(alice).Int64(); got != 500 {
		t.Fatalf("claimed = %d, want 500", got)
	}
	if got := h.vault.TotalClaimed().Int64(); got != 500 {
		t.Fatalf("total claimed = %d, want 500", got)
	}
}

// reentrantClaimer re-enters the vault from inside the native delivery hook,
// the way a hostile recipient contract would.
type reentrantClaimer struct {
	vault     *Vault
	maxAmount *big.Int
	proof     []common.Hash
	nestedErr error
	swallow   bool
}

func (r *reentrantClaimer) ReceiveNative(from common.Address, amount *big.Int) error {
	_, r.nestedErr = r.vault.Claim(context.Background(), alice, r.maxAmount, r.proof)
	if r.swallow {
		return nil
	}
	return r.nestedErr
}

func TestClaimReentrancyRejected(t *testing.T) {
	h := newNativeVaultHarness(t, 1000)
	ctx := context.Background()
	tree := buildTree(t, merkle.Entry{Account: alice, MaxAmount: big.NewInt(600)})
	h.arm(t, tree, 10, 1000)

	attacker := &reentrantClaimer{
		vault:     h.vault,
		maxAmount: big.NewInt(600),
		proof:     proofFor(t, tree, alice, 600),
		swallow:   true,
	}
	h.platform.Native().RegisterReceiver(alice, attacker)

	// The outer claim succeeds once; the nested attempt is rejected.
	if _, err := h.vault.Claim(ctx, alice, big.NewInt(600), proofFor(t, tree, alice, 600)); err != nil {
		t.Fatalf("outer claim: %v", err)
	}
	if !errors.Is(attacker.nestedErr, domain.ErrReentrancy) {
		t.Fatalf("nested err = %v, want ErrReentrancy", attacker.nestedErr)
	}
	if got := h.platform.Native().BalanceOf(alice).Int64(); got != 600 {
		t.Fatalf("alice balance = %d, want 600 (single payout)", got)
	}
	if got := h.vault.TotalClaimed().Int64(); got != 600 {
		t.Fatalf("total claimed = %d, want 600", got)
	}
}

func TestClaimReentrancyPropagatedRollsBack(t *testing.T) {
	h := newNativeVaultHarness(t, 1000)
	ctx := context.Background()
	tree := buildTree(t, merkle.Entry{Account: alice, MaxAmount: big.NewInt(600)})
	h.arm(t, tree, 10, 1000)

	attacker := &reentrantClaimer{
		vault:     h.vault,
		maxAmount: big.NewInt(600),
		proof:     proofFor(t, tree, alice, 600),
	}
	h.platform.Native().RegisterReceiver(alice, attacker)

	// The hook propagates the reentrancy error, failing the delivery; the
	// outer claim rolls back completely.
	if _, err := h.vault.Claim(ctx, alice, big.NewInt(600), proofFor(t, tree, alice, 600)); !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}
	if got := h.vault.ClaimedOf(alice).Int64(); got != 0 {
		t.Fatalf("claimed = %d, want 0", got)
	}
	if got := h.platform.Native().BalanceOf(alice).Int64(); got != 0 {
		t.Fatalf("alice balance = %d, want 0", got)
	}
	if got := h.vault.Balance().Int64(); got != 1000 {
		t.Fatalf("vault balance = %d, want 1000", got)
	}
}

// observingRecipient snapshots vault state from inside the delivery hook,
// the way an integrating recipient contract inspects the ledger mid-payout.
type observingRecipient struct {
	vault   *Vault
	claimed *big.Int
	total   *big.Int
	root    common.Hash
	window  domain.Window
	rootErr error
}

func (o *observingRecipient) ReceiveNative(from common.Address, amount *big.Int) error {
	o.claimed = o.vault.ClaimedOf(alice)
	o.total = o.vault.TotalClaimed()
	o.root = o.vault.Root()
	o.window = o.vault.Window()
	o.rootErr = o.vault.SetRoot(context.Background(), operator, common.HexToHash("0x02"))
	return nil
}

func TestClaimAllowsReadsFromDeliveryHook(t *testing.T) {
	h := newNativeVaultHarness(t, 1000)
	ctx := context.Background()
	tree := buildTree(t, merkle.Entry{Account: alice, MaxAmount: big.NewInt(600)})
	h.arm(t, tree, 10, 1000)

	recipient := &observingRecipient{vault: h.vault}
	h.platform.Native().RegisterReceiver(alice, recipient)

	if _, err := h.vault.Claim(ctx, alice, big.NewInt(600), proofFor(t, tree, alice, 600)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Reads from the hook complete and see the committed ledger update.
	if recipient.claimed == nil || recipient.claimed.Int64() != 600 {
		t.Fatalf("hook saw claimed = %v, want 600", recipient.claimed)
	}
	if recipient.total.Int64() != 600 {
		t.Fatalf("hook saw total = %v, want 600", recipient.total)
	}
	if recipient.root != tree.Root() {
		t.Fatal("hook saw a stale root")
	}
	if recipient.window != h.vault.Window() {
		t.Fatal("hook saw a stale window")
	}
	// Mutations from the hook are refused, not deadlocked.
	if !errors.Is(recipient.rootErr, domain.ErrReentrancy) {
		t.Fatalf("nested set-root err = %v, want ErrReentrancy", recipient.rootErr)
	}
	if h.vault.Root() != tree.Root() {
		t.Fatal("nested set-root must not take effect")
	}
}

func TestWithdrawTiming(t *testing.T) {
	h := newTokenVaultHarness(t, 1000)
	ctx := context.Background()

	if err := h.vault.SetWindow(ctx, operator, h.now+10, 100); err != nil {
		t.Fatalf("set window: %v", err)
	}

	if _, err := h.vault.WithdrawAs(ctx, alice); !errors.Is(err, domain.ErrOnlyOwner) {
		t.Fatalf("got %v, want ErrOnlyOwner", err)
	}

	h.now += 110 // now == end exactly
	if _, err := h.vault.Withdraw(ctx); !errors.Is(err, domain.ErrInvalidTime) {
		t.Fatalf("at end: got %v, want ErrInvalidTime", err)
	}

	h.now++
	amount, err := h.vault.Withdraw(ctx)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount.Int64() != 1000 {
		t.Fatalf("withdrawn = %d, want 1000", amount.Int64())
	}
	if got := h.platform.Token(tokenAddr).BalanceOf(owner).Int64(); got != 1000 {
		t.Fatalf("owner balance = %d, want 1000", got)
	}

	// Nothing left.
	if _, err := h.vault.Withdraw(ctx); !errors.Is(err, domain.ErrNoTokens) {
		t.Fatalf("got %v, want ErrNoTokens", err)
	}
}

func TestWithdrawWithoutWindow(t *testing.T) {
	// A vault whose window was never configured is immediately withdrawable.
	h := newTokenVaultHarness(t, 500)
	amount, err := h.vault.Withdraw(context.Background())
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount.Int64() != 500 {
		t.Fatalf("withdrawn = %d, want 500", amount.Int64())
	}
}

func TestTokenVaultRefusesNative(t *testing.T) {
	h := newTokenVaultHarness(t, 100)
	h.platform.Native().Mint(alice, big.NewInt(50))

	err := h.platform.Native().Send(alice, vaultAddr, big.NewInt(50))
	if !errors.Is(err, domain.ErrNativeNotAccepted) {
		t.Fatalf("got %v, want ErrNativeNotAccepted", err)
	}
	// The rejected send was undone.
	if got := h.platform.Native().BalanceOf(alice).Int64(); got != 50 {
		t.Fatalf("alice balance = %d, want 50", got)
	}
}

func TestNativeVaultAcceptsTopUp(t *testing.T) {
	h := newNativeVaultHarness(t, 100)
	h.platform.Native().Mint(alice, big.NewInt(50))

	if err := h.platform.Native().Send(alice, vaultAddr, big.NewInt(50)); err != nil {
		t.Fatalf("top-up: %v", err)
	}
	if got := h.vault.Balance().Int64(); got != 150 {
		t.Fatalf("vault balance = %d, want 150", got)
	}
}

func TestRestoreState(t *testing.T) {
	h := newTokenVaultHarness(t, 400)
	root := common.HexToHash("0x1234")
	window := domain.Window{Start: 100, End: 200}
	h.vault.RestoreState(root, window, map[common.Address]*big.Int{
		alice: big.NewInt(600),
		bob:   big.NewInt(150),
	})

	if h.vault.Root() != root {
		t.Fatal("root not restored")
	}
	if h.vault.Window() != window {
		t.Fatal("window not restored")
	}
	if got := h.vault.ClaimedOf(alice).Int64(); got != 600 {
		t.Fatalf("claimed = %d, want 600", got)
	}
	if got := h.vault.TotalClaimed().Int64(); got != 750 {
		t.Fatalf("total claimed = %d, want 750", got)
	}
}

func TestClaimEmitsEvent(t *testing.T) {
	h := newTokenVaultHarness(t, 1000)
	ctx := context.Background()
	tree := buildTree(t, merkle.Entry{Account: alice, MaxAmount: big.NewInt(600)})
	h.arm(t, tree, 10, 1000)

	if _, err := h.vault.Claim(ctx, alice, big.NewInt(600), proofFor(t, tree, alice, 600)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	list := h.sink.ListByVault(vaultAddr)
	var claimed *domain.Event
	for i := range list {
		if list[i].Type == domain.EventClaimed {
			claimed = &list[i]
		}
	}
	if claimed == nil {
		t.Fatal("no claimed event emitted")
	}
	if claimed.Account != alice || claimed.Amount.Int64() != 600 {
		t.Fatalf("unexpected event %+v", claimed)
	}
}
