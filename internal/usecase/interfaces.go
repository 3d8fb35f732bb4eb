package usecase

import (
	"context"
	"math/big"

	"boost/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// AssetAdapter is the uniform transfer surface the vault uses for both
// fungible-token and native-currency assets. Implementations translate
// platform-level failure signals (false returns, rejected sends) into
// taxonomy errors.
type AssetAdapter interface {
	BalanceOf(holder common.Address) *big.Int
	PayOut(from, to common.Address, amount *big.Int) error
	PullIn(from, to common.Address, amount *big.Int) error
}

// ProofVerifier checks a claimant's allotment against the committed root.
type ProofVerifier interface {
	LeafHash(account common.Address, maxAmount *big.Int) common.Hash
	Verify(proof []common.Hash, root, leaf common.Hash) bool
}

// EventSink receives emitted vault signals.
type EventSink interface {
	Emit(ctx context.Context, event domain.Event) error
}

// VaultStore is the durable record of vault state. Writes happen after the
// corresponding transfer has succeeded; a store failure is logged, not
// unwound, because transfers are final.
type VaultStore interface {
	SaveVault(ctx context.Context, info domain.VaultInfo) error
	SaveClaim(ctx context.Context, vaultID, account common.Address, amount *big.Int) error
	AppendEvent(ctx context.Context, event domain.Event) error
}

// PolicyEngine evaluates the optional claim policy before proof
// verification.
type PolicyEngine interface {
	Evaluate(ctx context.Context, input domain.ClaimPolicyInput) (domain.PolicyEvaluation, error)
}

// NativeReceiver is implemented by vaults so the native ledger can deliver
// unsolicited value transfers to them.
type NativeReceiver interface {
	ReceiveNative(from common.Address, amount *big.Int) error
}
