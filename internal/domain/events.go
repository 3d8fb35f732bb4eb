package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type EventType string

const (
	EventVaultCreated EventType = "vault_created"
	EventWindowSet    EventType = "window_set"
	EventRootSet      EventType = "root_set"
	EventClaimed      EventType = "claimed"
	EventWithdrawn    EventType = "withdrawn"
)

// Event is one emitted vault signal. Only the fields relevant to the event
// type are populated.
type Event struct {
	Type     EventType      `json:"type"`
	VaultID  common.Address `json:"vault_id"`
	Account  common.Address `json:"account,omitempty"`
	Operator common.Address `json:"operator,omitempty"`
	Asset    common.Address `json:"asset,omitempty"`
	Amount   *big.Int       `json:"amount,omitempty"`
	Root     common.Hash    `json:"root,omitempty"`
	Window   *Window        `json:"window,omitempty"`
	At       time.Time      `json:"at"`
}
