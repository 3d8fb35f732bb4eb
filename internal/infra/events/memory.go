package events

import (
	"context"
	"sync"

	"boost/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// MemorySink keeps the most recent events in a bounded ring. It backs the
// registry event endpoint when no broker is configured and doubles as the
// capture sink in tests.
type MemorySink struct {
	mu     sync.Mutex
	events []domain.Event
	max    int
}

func NewMemorySink(max int) *MemorySink {
	if max <= 0 {
		max = 1024
	}
	return &MemorySink{max: max}
}

func (s *MemorySink) Emit(ctx context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if len(s.events) > s.max {
		s.events = s.events[len(s.events)-s.max:]
	}
	return nil
}

func (s *MemorySink) List() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *MemorySink) ListByVault(vaultID common.Address) []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, event := range s.events {
		if event.VaultID == vaultID {
			out = append(out, event)
		}
	}
	return out
}
