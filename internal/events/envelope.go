package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Event is a versioned domain event.
type Event interface {
	EventType() string
}

// Envelope is the transport shape of an outbox entry on the stream and the live feed.
type Envelope struct {
	EventID         uuid.UUID       `json:"event_id"`
	EventType       string          `json:"event_type"`
	Aggregate       string          `json:"aggregate"`
	TimestampMicros int64           `json:"timestamp"`
	Payload         json.RawMessage `json:"payload"`
}

// EnvelopeFor wraps a fetched outbox entry.
func EnvelopeFor(entry OutboxEntry) Envelope {
	return Envelope{
		EventID:         entry.ID,
		EventType:       entry.Type,
		Aggregate:       entry.Aggregate,
		TimestampMicros: entry.CreatedAt.UTC().UnixMicro(),
		Payload:         entry.Payload,
	}
}

var (
	errMissingAggregate = errors.New("events: aggregate is required")
	errNilEvent         = errors.New("events: event required")
)

// Execer is satisfied by pgxpool.Pool and pgx.Tx, so events can be appended
// inside the caller's transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const insertOutboxSQL = `
	INSERT INTO outbox (id, aggregate, event_type, payload)
	VALUES ($1, $2, $3, $4)
`

// Append marshals evt and writes it to the outbox through exec.
func Append(ctx context.Context, exec Execer, aggregate string, evt Event) (uuid.UUID, error) {
	if exec == nil {
		return uuid.Nil, fmt.Errorf("events: exec required")
	}
	if strings.TrimSpace(aggregate) == "" {
		return uuid.Nil, errMissingAggregate
	}
	if evt == nil {
		return uuid.Nil, errNilEvent
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		return uuid.Nil, fmt.Errorf("events: event type missing")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal payload: %w", err)
	}
	id := uuid.New()
	if _, err := exec.Exec(ctx, insertOutboxSQL, id, strings.TrimSpace(aggregate), eventType, data); err != nil {
		return uuid.Nil, fmt.Errorf("events: insert outbox: %w", err)
	}
	return id, nil
}

// AppointmentAggregate is the aggregate key of appointment events.
func AppointmentAggregate(id uuid.UUID) string {
	return "appointment:" + id.String()
}

// Decode unmarshals an envelope payload into dst.
func (e Envelope) Decode(dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("events: decode %s: %w", e.EventType, err)
	}
	return nil
}

// Time returns the envelope timestamp.
func (e Envelope) Time() time.Time {
	return time.UnixMicro(e.TimestampMicros).UTC()
}
