package usecase

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"
	"time"

	"boost/internal/domain"
	"boost/internal/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// Factory creates, funds and registers one vault per campaign. Vault
// identities are derived deterministically from the creation tuple, so an
// exact duplicate call in the same creation context collides and is refused.
type Factory struct {
	chainID  uint64
	verifier ProofVerifier
	events   EventSink
	store    VaultStore
	clock    func() time.Time
	log      *logrus.Entry

	// AdapterFor resolves the transfer adapter for an asset.
	adapterFor func(asset common.Address) AssetAdapter
	// registerReceiver installs a new vault as native-currency receiver.
	registerReceiver func(id common.Address, receiver NativeReceiver)

	mu     sync.Mutex
	vaults map[common.Address]*Vault
}

type FactoryConfig struct {
	ChainID          uint64
	Verifier         ProofVerifier
	Events           EventSink
	Store            VaultStore
	Clock            func() time.Time
	Log              *logrus.Entry
	AdapterFor       func(asset common.Address) AssetAdapter
	RegisterReceiver func(id common.Address, receiver NativeReceiver)
}

func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = logrus.WithField("component", "factory")
	}
	return &Factory{
		chainID:          cfg.ChainID,
		verifier:         cfg.Verifier,
		events:           cfg.Events,
		store:            cfg.Store,
		clock:            cfg.Clock,
		log:              cfg.Log,
		adapterFor:       cfg.AdapterFor,
		registerReceiver: cfg.RegisterReceiver,
		vaults:           make(map[common.Address]*Vault),
	}
}

type CreateVaultRequest struct {
	Creator     common.Address
	Asset       common.Address
	Operator    common.Address
	TotalAmount *big.Int
	// NativeFunding is the native currency supplied with the call. It must
	// equal TotalAmount for native-asset vaults and be absent for token
	// vaults.
	NativeFunding *big.Int
	// Ordinal identifies the creation context; identical tuples within the
	// same ordinal derive the same vault id and therefore collide.
	Ordinal uint64
}

// CreateVault validates the request, derives the vault identity, performs
// the atomic funding transfer, and registers the new vault.
func (f *Factory) CreateVault(ctx context.Context, req CreateVaultRequest) (*Vault, error) {
	if req.Asset == (common.Address{}) {
		return nil, domain.ErrInvalidToken
	}
	if req.Operator == (common.Address{}) {
		return nil, domain.ErrInvalidOperator
	}
	if req.TotalAmount == nil || req.TotalAmount.Sign() <= 0 {
		return nil, domain.ErrInvalidTotalAmount
	}

	id := DeriveVaultID(req.Creator, req.Asset, req.TotalAmount, f.chainID, req.Ordinal)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.vaults[id]; exists {
		return nil, domain.ErrVaultExists
	}

	adapter := f.adapterFor(req.Asset)
	if domain.IsNative(req.Asset) {
		if req.NativeFunding == nil || req.NativeFunding.Cmp(req.TotalAmount) != 0 {
			return nil, domain.ErrAmountMismatch
		}
		if err := adapter.PullIn(req.Creator, id, req.TotalAmount); err != nil {
			return nil, domain.ErrNativeSendFailed
		}
	} else {
		if req.NativeFunding != nil && req.NativeFunding.Sign() > 0 {
			return nil, domain.ErrUnexpectedNative
		}
		if err := adapter.PullIn(req.Creator, id, req.TotalAmount); err != nil {
			return nil, domain.ErrTransferFailed
		}
	}

	vault := NewVault(VaultConfig{
		ID:       id,
		Asset:    req.Asset,
		Owner:    req.Creator,
		Operator: req.Operator,
		Adapter:  adapter,
		Verifier: f.verifier,
		Events:   f.events,
		Store:    f.store,
		Clock:    f.clock,
		Log:      f.log,
	})
	f.vaults[id] = vault
	if f.registerReceiver != nil {
		f.registerReceiver(id, vault)
	}

	f.emit(ctx, domain.Event{
		Type:     domain.EventVaultCreated,
		VaultID:  id,
		Account:  req.Creator,
		Operator: req.Operator,
		Asset:    req.Asset,
		Amount:   new(big.Int).Set(req.TotalAmount),
	})
	if f.store != nil {
		if err := f.store.SaveVault(ctx, vault.Info()); err != nil {
			f.log.WithError(err).WithField("vault", id.Hex()).Warn("vault persist failed")
		}
	}
	metrics.VaultsCreated.Inc()
	f.log.WithFields(logrus.Fields{
		"vault":    id.Hex(),
		"asset":    req.Asset.Hex(),
		"operator": req.Operator.Hex(),
	}).Info("vault created")
	return vault, nil
}

// Vault returns a registered vault by id.
func (f *Factory) Vault(id common.Address) (*Vault, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vault, ok := f.vaults[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return vault, nil
}

// IsVault reports registry membership.
func (f *Factory) IsVault(id common.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.vaults[id]
	return ok
}

// Attach registers a rehydrated vault without funding it, used at startup.
func (f *Factory) Attach(vault *Vault) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.vaults[vault.ID()]; exists {
		return domain.ErrVaultExists
	}
	f.vaults[vault.ID()] = vault
	if f.registerReceiver != nil {
		f.registerReceiver(vault.ID(), vault)
	}
	return nil
}

func (f *Factory) emit(ctx context.Context, event domain.Event) {
	event.At = f.clock().UTC()
	if f.events != nil {
		if err := f.events.Emit(ctx, event); err != nil {
			f.log.WithError(err).WithField("event", event.Type).Warn("event emit failed")
		}
	}
	if f.store != nil {
		if err := f.store.AppendEvent(ctx, event); err != nil {
			f.log.WithError(err).WithField("event", event.Type).Warn("event append failed")
		}
	}
}

// DeriveVaultID computes the deterministic vault identity for a creation
// tuple: keccak256(creator ++ asset ++ totalAmount ++ chainID ++ ordinal),
// truncated to an address.
func DeriveVaultID(creator, asset common.Address, totalAmount *big.Int, chainID, ordinal uint64) common.Address {
	buf := make([]byte, 0, 2*common.AddressLength+common.HashLength+16)
	buf = append(buf, creator.Bytes()...)
	buf = append(buf, asset.Bytes()...)
	amount := make([]byte, common.HashLength)
	if totalAmount != nil {
		totalAmount.FillBytes(amount)
	}
	buf = append(buf, amount...)
	buf = binary.BigEndian.AppendUint64(buf, chainID)
	buf = binary.BigEndian.AppendUint64(buf, ordinal)
	return common.BytesToAddress(crypto.Keccak256(buf)[12:])
}
