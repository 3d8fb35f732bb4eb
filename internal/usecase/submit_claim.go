package usecase

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"boost/internal/domain"
	"boost/internal/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// SubmitClaim orchestrates one claim: registry lookup, optional policy
// evaluation, then the vault's claim state machine.
type SubmitClaim struct {
	Vaults *Factory
	Policy PolicyEngine
	Log    *logrus.Entry
}

type SubmitClaimRequest struct {
	VaultID   common.Address
	Claimant  common.Address
	MaxAmount *big.Int
	Proof     []common.Hash
}

func (uc *SubmitClaim) Execute(ctx context.Context, req SubmitClaimRequest) (*domain.ClaimReceipt, error) {
	started := time.Now()
	receipt, err := uc.execute(ctx, req)
	metrics.ClaimDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.ClaimFailures.WithLabelValues(domain.Code(err)).Inc()
		return nil, err
	}
	metrics.ClaimsTotal.Inc()
	delta, _ := new(big.Float).SetInt(receipt.Delta).Float64()
	metrics.ClaimedAmount.Add(delta)
	return receipt, nil
}

func (uc *SubmitClaim) execute(ctx context.Context, req SubmitClaimRequest) (*domain.ClaimReceipt, error) {
	vault, err := uc.Vaults.Vault(req.VaultID)
	if err != nil {
		return nil, err
	}

	if uc.Policy != nil {
		maxAmount := "0"
		if req.MaxAmount != nil {
			maxAmount = req.MaxAmount.String()
		}
		evaluation, err := uc.Policy.Evaluate(ctx, domain.ClaimPolicyInput{
			VaultID:        req.VaultID,
			Asset:          vault.Asset(),
			Claimant:       req.Claimant,
			MaxAmount:      maxAmount,
			AlreadyClaimed: vault.ClaimedOf(req.Claimant).String(),
		})
		if err != nil {
			return nil, err
		}
		if !evaluation.Result.Allow {
			codes := strings.Join(evaluation.Result.DenyCodes(), ", ")
			uc.logger().WithFields(logrus.Fields{
				"vault":    req.VaultID.Hex(),
				"claimant": req.Claimant.Hex(),
				"deny":     codes,
			}).Info("claim denied by policy")
			if codes != "" {
				return nil, fmt.Errorf("%w: %s", domain.ErrClaimDenied, codes)
			}
			return nil, domain.ErrClaimDenied
		}
	}

	receipt, err := vault.Claim(ctx, req.Claimant, req.MaxAmount, req.Proof)
	if err != nil {
		return nil, err
	}
	uc.logger().WithFields(logrus.Fields{
		"vault":    req.VaultID.Hex(),
		"claimant": req.Claimant.Hex(),
		"delta":    receipt.Delta.String(),
	}).Info("claim paid")
	return receipt, nil
}

func (uc *SubmitClaim) logger() *logrus.Entry {
	if uc.Log != nil {
		return uc.Log
	}
	return logrus.WithField("component", "claims")
}
