// Package compliance keeps an append-only audit trail of administrative actions
// on patient data and the appointment ledger.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// AuditEventType represents the type of audited action.
type AuditEventType string

const (
	// EventAppointmentBooked is logged when a booking commits.
	EventAppointmentBooked AuditEventType = "appointment.booked"
	// EventAppointmentStatusChanged is logged for every status transition.
	EventAppointmentStatusChanged AuditEventType = "appointment.status_changed"
	// EventPsychologistRegistered is logged when an admin registers a psychologist.
	EventPsychologistRegistered AuditEventType = "user.psychologist_registered"
	// EventPatientRegistered is logged on patient self-registration.
	EventPatientRegistered AuditEventType = "user.patient_registered"
	// EventProfileUpdated is logged when a user edits their profile.
	EventProfileUpdated AuditEventType = "user.profile_updated"
	// EventUserDeactivated is logged when an admin deactivates a user.
	EventUserDeactivated AuditEventType = "user.deactivated"
)

// AuditEvent represents an immutable audit record.
type AuditEvent struct {
	ID        string          `json:"id"`
	EventType AuditEventType  `json:"event_type"`
	ActorID   string          `json:"actor_id,omitempty"`
	SubjectID string          `json:"subject_id,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Recorder is the write side used by services that need an audit entry.
type Recorder interface {
	Record(ctx context.Context, eventType AuditEventType, actorID, subjectID string, details any) error
}

// AuditService handles audit logging.
type AuditService struct {
	db  *sql.DB
	now func() time.Time
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db, now: time.Now}
}

// LogEvent records an audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if s == nil || s.db == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	if len(event.Details) == 0 {
		event.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO audit_events (
			id, event_type, actor_id, subject_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.EventType),
		nullString(event.ActorID),
		nullString(event.SubjectID),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}

	return nil
}

// Record marshals details and logs the event.
func (s *AuditService) Record(ctx context.Context, eventType AuditEventType, actorID, subjectID string, details any) error {
	var raw json.RawMessage
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("compliance: marshal details: %w", err)
		}
		raw = data
	}
	return s.LogEvent(ctx, AuditEvent{
		EventType: eventType,
		ActorID:   actorID,
		SubjectID: subjectID,
		Details:   raw,
	})
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	EventTypes []AuditEventType
	SubjectID  string
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
}

// QueryEvents retrieves audit events with filters, newest first.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, actor_id, subject_id, details, created_at
		FROM audit_events
		WHERE 1=1
	`
	var args []interface{}
	argIdx := 1

	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argIdx)
		args = append(args, pq.Array(types))
		argIdx++
	}
	if filter.SubjectID != "" {
		query += fmt.Sprintf(" AND subject_id = $%d", argIdx)
		args = append(args, filter.SubjectID)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := []AuditEvent{}
	for rows.Next() {
		var e AuditEvent
		var eventType string
		var actorID, subjectID sql.NullString
		var details []byte
		if err := rows.Scan(&e.ID, &eventType, &actorID, &subjectID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.EventType = AuditEventType(eventType)
		e.ActorID = actorID.String
		e.SubjectID = subjectID.String
		e.Details = append(json.RawMessage(nil), details...)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compliance: iterate audit events: %w", err)
	}

	return events, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
