package db

import (
	"context"
	"errors"
	"math/big"

	"boost/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VaultRepository struct {
	db *gorm.DB
}

func NewVaultRepository(db *gorm.DB) *VaultRepository {
	return &VaultRepository{db: db}
}

// Save upserts the vault row keyed by id. Vault snapshots are written after
// every state transition, so the latest row is the authoritative state.
func (r *VaultRepository) Save(ctx context.Context, info domain.VaultInfo) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := vaultModelFromInfo(info)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"root", "window_start", "window_end", "total_claimed", "balance", "updated_at",
			}),
		}).
		Create(&model).Error
}

func (r *VaultRepository) Get(ctx context.Context, id common.Address) (domain.VaultInfo, error) {
	if r.db == nil {
		return domain.VaultInfo{}, errDBUnavailable
	}
	var model VaultModel
	err := r.db.WithContext(ctx).Where("id = ?", id.Hex()).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.VaultInfo{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.VaultInfo{}, err
	}
	return vaultInfoFromModel(model), nil
}

func (r *VaultRepository) List(ctx context.Context) ([]domain.VaultInfo, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []VaultModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.VaultInfo, 0, len(models))
	for _, model := range models {
		out = append(out, vaultInfoFromModel(model))
	}
	return out, nil
}

func vaultModelFromInfo(info domain.VaultInfo) VaultModel {
	return VaultModel{
		ID:           info.ID.Hex(),
		Asset:        info.Asset.Hex(),
		Owner:        info.Owner.Hex(),
		Operator:     info.Operator.Hex(),
		Root:         info.Root.Hex(),
		WindowStart:  info.Window.Start,
		WindowEnd:    info.Window.End,
		TotalClaimed: bigString(info.TotalClaimed),
		Balance:      bigString(info.Balance),
	}
}

func vaultInfoFromModel(model VaultModel) domain.VaultInfo {
	return domain.VaultInfo{
		ID:           common.HexToAddress(model.ID),
		Asset:        common.HexToAddress(model.Asset),
		Owner:        common.HexToAddress(model.Owner),
		Operator:     common.HexToAddress(model.Operator),
		Root:         common.HexToHash(model.Root),
		Window:       domain.Window{Start: model.WindowStart, End: model.WindowEnd},
		TotalClaimed: parseBig(model.TotalClaimed),
		Balance:      parseBig(model.Balance),
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}
