package events

import (
	"context"
	"errors"

	"boost/internal/domain"
)

// Fanout delivers each event to every sink and reports the joined errors.
type Fanout []interface {
	Emit(ctx context.Context, event domain.Event) error
}

func (f Fanout) Emit(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
