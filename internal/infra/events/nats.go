package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"boost/internal/domain"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes each event as JSON on <prefix>.<type>, so consumers can
// subscribe to a single signal kind or the whole stream with a wildcard.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

func NewNATSSink(url, prefix string) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSSink{conn: conn, prefix: prefix}, nil
}

type wireEvent struct {
	Type        string  `json:"type"`
	VaultID     string  `json:"vault_id"`
	Account     string  `json:"account,omitempty"`
	Operator    string  `json:"operator,omitempty"`
	Asset       string  `json:"asset,omitempty"`
	Amount      string  `json:"amount,omitempty"`
	Root        string  `json:"root,omitempty"`
	WindowStart *uint64 `json:"window_start,omitempty"`
	WindowEnd   *uint64 `json:"window_end,omitempty"`
	At          string  `json:"at"`
}

func (s *NATSSink) Emit(ctx context.Context, event domain.Event) error {
	wire := wireEvent{
		Type:    string(event.Type),
		VaultID: event.VaultID.Hex(),
		At:      event.At.UTC().Format(time.RFC3339Nano),
	}
	if !isZeroAddr(event.Account.Bytes()) {
		wire.Account = event.Account.Hex()
	}
	if !isZeroAddr(event.Operator.Bytes()) {
		wire.Operator = event.Operator.Hex()
	}
	if !isZeroAddr(event.Asset.Bytes()) {
		wire.Asset = event.Asset.Hex()
	}
	if event.Amount != nil {
		wire.Amount = event.Amount.String()
	}
	if !isZeroAddr(event.Root.Bytes()) {
		wire.Root = event.Root.Hex()
	}
	if event.Window != nil {
		start, end := event.Window.Start, event.Window.End
		wire.WindowStart = &start
		wire.WindowEnd = &end
	}
	payload, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	return s.conn.Publish(s.prefix+"."+wire.Type, payload)
}

func (s *NATSSink) Close() {
	s.conn.Drain()
}

func isZeroAddr(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
