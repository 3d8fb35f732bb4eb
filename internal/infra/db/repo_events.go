package db

import (
	"context"

	"boost/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Append(ctx context.Context, event domain.Event) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := EventModel{
		ID:      uuid.NewString(),
		Type:    string(event.Type),
		VaultID: event.VaultID.Hex(),
		At:      event.At,
	}
	if event.Account != (common.Address{}) {
		model.Account = event.Account.Hex()
	}
	if event.Operator != (common.Address{}) {
		model.Operator = event.Operator.Hex()
	}
	if event.Asset != (common.Address{}) {
		model.Asset = event.Asset.Hex()
	}
	if event.Amount != nil {
		model.Amount = event.Amount.String()
	}
	if event.Root != (common.Hash{}) {
		model.Root = event.Root.Hex()
	}
	if event.Window != nil {
		start, end := event.Window.Start, event.Window.End
		model.WindowStart = &start
		model.WindowEnd = &end
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *EventRepository) ListByVault(ctx context.Context, vaultID common.Address) ([]EventModel, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []EventModel
	if err := r.db.WithContext(ctx).
		Where("vault_id = ?", vaultID.Hex()).
		Order("at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return models, nil
}
