package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAsset is the sentinel asset id denoting the platform's native
// currency. The zero address is not a valid asset id.
var NativeAsset = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

func IsNative(asset common.Address) bool {
	return asset == NativeAsset
}

// FundingSpender is the identity that consumes token allowances when a vault
// is funded. Creators approve this spender before creating token vaults.
var FundingSpender = common.HexToAddress("0x000000000000000000000000000000000000b005")

// Window is a distribution window in epoch seconds. Both fields zero means
// the window has never been configured.
type Window struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

func (w Window) IsActive(now uint64) bool {
	return w.Start != 0 && w.Start <= now && now <= w.End
}

func (w Window) HasEnded(now uint64) bool {
	return w.End != 0 && now > w.End
}

// VaultInfo is the externally visible state of one distribution vault.
type VaultInfo struct {
	ID           common.Address `json:"id"`
	Asset        common.Address `json:"asset"`
	Owner        common.Address `json:"owner"`
	Operator     common.Address `json:"operator"`
	Root         common.Hash    `json:"root"`
	Window       Window         `json:"window"`
	TotalClaimed *big.Int       `json:"total_claimed"`
	Balance      *big.Int       `json:"balance"`
}

// ClaimReceipt reports one successful claim. Delta is the amount actually
// paid out, CumulativeAmount the claimant's new total.
type ClaimReceipt struct {
	VaultID          common.Address `json:"vault_id"`
	Claimant         common.Address `json:"claimant"`
	Delta            *big.Int       `json:"delta"`
	CumulativeAmount *big.Int       `json:"cumulative_amount"`
}
