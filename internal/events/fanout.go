package events

import (
	"context"
	"errors"

	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

// Fanout delivers each entry to every handler. An entry counts as delivered
// only when all handlers succeed, so a failing sink gets the entry again on
// the next poll, together with every sink that already took it. Wrap sinks
// that must not hold the entry back in BestEffort, and keep the remaining
// handlers idempotent per event ID.
type Fanout []DeliveryHandler

func (f Fanout) Handle(ctx context.Context, entry OutboxEntry) error {
	var errs []error
	for _, h := range f {
		if h == nil {
			continue
		}
		if err := h.Handle(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BestEffort logs a failing handler instead of failing the delivery.
func BestEffort(name string, h DeliveryHandler, logger *logging.Logger) DeliveryHandler {
	if h == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return HandlerFunc(func(ctx context.Context, entry OutboxEntry) error {
		if err := h.Handle(ctx, entry); err != nil {
			logger.Warn("outbox sink failed, not retrying", "sink", name, "error", err, "event_id", entry.ID, "type", entry.Type)
		}
		return nil
	})
}
