package db

import (
	"context"
	"math/big"

	"boost/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// StateStore adapts the repositories to the single persistence surface the
// vault engine writes through. With no database configured every write is a
// silent no-op, matching the in-memory deployment mode.
type StateStore struct {
	Vaults *VaultRepository
	Claims *ClaimRepository
	Events *EventRepository
}

func NewStateStore(store *Store) *StateStore {
	return &StateStore{
		Vaults: NewVaultRepository(store.DB),
		Claims: NewClaimRepository(store.DB),
		Events: NewEventRepository(store.DB),
	}
}

func (s *StateStore) enabled() bool {
	return s.Vaults != nil && s.Vaults.db != nil
}

func (s *StateStore) SaveVault(ctx context.Context, info domain.VaultInfo) error {
	if !s.enabled() {
		return nil
	}
	return s.Vaults.Save(ctx, info)
}

func (s *StateStore) SaveClaim(ctx context.Context, vaultID, account common.Address, amount *big.Int) error {
	if !s.enabled() {
		return nil
	}
	return s.Claims.Save(ctx, vaultID, account, amount)
}

func (s *StateStore) AppendEvent(ctx context.Context, event domain.Event) error {
	if !s.enabled() {
		return nil
	}
	return s.Events.Append(ctx, event)
}

// VaultRecord is one persisted vault plus its claim ledger, used to
// rehydrate in-memory vaults at startup.
type VaultRecord struct {
	Info   domain.VaultInfo
	Claims map[common.Address]*big.Int
}

func (s *StateStore) LoadAll(ctx context.Context) ([]VaultRecord, error) {
	if !s.enabled() {
		return nil, nil
	}
	infos, err := s.Vaults.List(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]VaultRecord, 0, len(infos))
	for _, info := range infos {
		claims, err := s.Claims.ListByVault(ctx, info.ID)
		if err != nil {
			return nil, err
		}
		records = append(records, VaultRecord{Info: info, Claims: claims})
	}
	return records, nil
}
