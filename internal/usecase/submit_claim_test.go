package usecase

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"boost/internal/domain"
	"boost/internal/infra/merkle"
)

type stubPolicy struct {
	allow   bool
	err     error
	lastIn  domain.ClaimPolicyInput
	called  int
	denyOut []domain.PolicyDeny
}

func (p *stubPolicy) Evaluate(ctx context.Context, input domain.ClaimPolicyInput) (domain.PolicyEvaluation, error) {
	p.called++
	p.lastIn = input
	if p.err != nil {
		return domain.PolicyEvaluation{}, p.err
	}
	return domain.PolicyEvaluation{
		BundleID:   "claims-test",
		BundleHash: "deadbeef",
		Result:     domain.PolicyResult{Allow: p.allow, Deny: p.denyOut},
	}, nil
}

func newClaimFixture(t *testing.T, policy PolicyEngine) (*factoryHarness, *Vault, *merkle.Tree, *SubmitClaim) {
	t.Helper()
	h := newFactoryHarness(t)
	h.fundToken(1000)
	vault, err := h.factory.CreateVault(context.Background(), tokenRequest(1000, 1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tree := buildTree(t, merkle.Entry{Account: alice, MaxAmount: big.NewInt(600)})
	if err := vault.SetWindow(context.Background(), operator, h.now+10, 1000); err != nil {
		t.Fatalf("set window: %v", err)
	}
	if err := vault.SetRoot(context.Background(), operator, tree.Root()); err != nil {
		t.Fatalf("set root: %v", err)
	}
	h.now += 20
	return h, vault, tree, &SubmitClaim{Vaults: h.factory, Policy: policy}
}

func TestSubmitClaimPaysOut(t *testing.T) {
	h, vault, tree, uc := newClaimFixture(t, nil)

	receipt, err := uc.Execute(context.Background(), SubmitClaimRequest{
		VaultID:   vault.ID(),
		Claimant:  alice,
		MaxAmount: big.NewInt(600),
		Proof:     proofFor(t, tree, alice, 600),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if receipt.Delta.Int64() != 600 {
		t.Fatalf("delta = %d, want 600", receipt.Delta.Int64())
	}
	if got := h.platform.Token(tokenAddr).BalanceOf(alice).Int64(); got != 600 {
		t.Fatalf("alice balance = %d, want 600", got)
	}
}

func TestSubmitClaimUnknownVault(t *testing.T) {
	_, _, tree, uc := newClaimFixture(t, nil)

	_, err := uc.Execute(context.Background(), SubmitClaimRequest{
		VaultID:   bob,
		Claimant:  alice,
		MaxAmount: big.NewInt(600),
		Proof:     proofFor(t, tree, alice, 600),
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSubmitClaimPolicyDenied(t *testing.T) {
	policy := &stubPolicy{allow: false, denyOut: []domain.PolicyDeny{{Code: "BLOCKED"}}}
	h, vault, tree, uc := newClaimFixture(t, policy)

	_, err := uc.Execute(context.Background(), SubmitClaimRequest{
		VaultID:   vault.ID(),
		Claimant:  alice,
		MaxAmount: big.NewInt(600),
		Proof:     proofFor(t, tree, alice, 600),
	})
	if !errors.Is(err, domain.ErrClaimDenied) {
		t.Fatalf("got %v, want ErrClaimDenied", err)
	}
	// The deny code the bundle produced travels with the error.
	if !strings.Contains(err.Error(), "BLOCKED") {
		t.Fatalf("error %q does not carry the deny code", err)
	}
	// The denied claim paid nothing and left no ledger trace.
	if got := h.platform.Token(tokenAddr).BalanceOf(alice).Int64(); got != 0 {
		t.Fatalf("alice balance = %d, want 0", got)
	}
	if got := vault.ClaimedOf(alice).Int64(); got != 0 {
		t.Fatalf("claimed = %d, want 0", got)
	}
	if policy.called != 1 {
		t.Fatalf("policy called %d times, want 1", policy.called)
	}
}

func TestSubmitClaimPolicyInput(t *testing.T) {
	policy := &stubPolicy{allow: true}
	h, vault, tree, uc := newClaimFixture(t, policy)

	if _, err := uc.Execute(context.Background(), SubmitClaimRequest{
		VaultID:   vault.ID(),
		Claimant:  alice,
		MaxAmount: big.NewInt(600),
		Proof:     proofFor(t, tree, alice, 600),
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	in := policy.lastIn
	if in.VaultID != vault.ID() || in.Claimant != alice || in.Asset != tokenAddr {
		t.Fatalf("unexpected policy input %+v", in)
	}
	if in.MaxAmount != "600" || in.AlreadyClaimed != "0" {
		t.Fatalf("unexpected amounts in policy input %+v", in)
	}
	_ = h
}

func TestSubmitClaimPolicyError(t *testing.T) {
	policyErr := errors.New("bundle unavailable")
	policy := &stubPolicy{err: policyErr}
	_, vault, tree, uc := newClaimFixture(t, policy)

	_, err := uc.Execute(context.Background(), SubmitClaimRequest{
		VaultID:   vault.ID(),
		Claimant:  alice,
		MaxAmount: big.NewInt(600),
		Proof:     proofFor(t, tree, alice, 600),
	})
	if !errors.Is(err, policyErr) {
		t.Fatalf("got %v, want policy error", err)
	}
}
