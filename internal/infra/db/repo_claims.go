package db

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ClaimRepository struct {
	db *gorm.DB
}

func NewClaimRepository(db *gorm.DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

// Save upserts the cumulative claimed amount for one account. The unique
// (vault_id, account) index keeps the ledger one row per claimant.
func (r *ClaimRepository) Save(ctx context.Context, vaultID, account common.Address, amount *big.Int) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := ClaimModel{
		VaultID: vaultID.Hex(),
		Account: account.Hex(),
		Amount:  bigString(amount),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "vault_id"}, {Name: "account"}},
			DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
		}).
		Create(&model).Error
}

func (r *ClaimRepository) ListByVault(ctx context.Context, vaultID common.Address) (map[common.Address]*big.Int, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []ClaimModel
	if err := r.db.WithContext(ctx).Where("vault_id = ?", vaultID.Hex()).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make(map[common.Address]*big.Int, len(models))
	for _, model := range models {
		out[common.HexToAddress(model.Account)] = parseBig(model.Amount)
	}
	return out, nil
}
