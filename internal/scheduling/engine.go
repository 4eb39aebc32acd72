// Package scheduling computes the offerable slots of a psychologist's day.
package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/natachasiqueira/clinicamentalize/internal/appointments"
	"github.com/natachasiqueira/clinicamentalize/internal/clinic"
	"github.com/natachasiqueira/clinicamentalize/internal/observability/metrics"
)

var schedulingTracer = otel.Tracer("clinicamentalize.internal.scheduling")

// TemplateSource resolves the working-hours template of a psychologist.
type TemplateSource interface {
	Template(ctx context.Context, psychologistID uuid.UUID) (*clinic.Settings, error)
}

// StaticTemplate serves the same settings for everyone.
type StaticTemplate struct {
	Settings *clinic.Settings
}

func (s StaticTemplate) Template(ctx context.Context, psychologistID uuid.UUID) (*clinic.Settings, error) {
	if s.Settings == nil {
		return clinic.DefaultSettings("", time.Hour), nil
	}
	cfg := *s.Settings
	return &cfg, nil
}

// Engine combines the template, the ledger and the lead-time rule.
type Engine struct {
	ledger    appointments.Reader
	templates TemplateSource
	metrics   *metrics.SchedulingMetrics
}

func NewEngine(ledger appointments.Reader, templates TemplateSource) *Engine {
	if ledger == nil {
		panic("scheduling: ledger required")
	}
	if templates == nil {
		templates = StaticTemplate{}
	}
	return &Engine{ledger: ledger, templates: templates}
}

// WithMetrics records query latency and result sizes.
func (e *Engine) WithMetrics(m *metrics.SchedulingMetrics) *Engine {
	e.metrics = m
	return e
}

// Available returns the free slots of the psychologist on date. Days before
// today in the clinic timezone are empty. A slot is free when it starts after
// now plus the lead time and no scheduled or confirmed appointment sits at
// exactly that instant.
//
// A slot starting exactly at now plus the lead time is not offered, although
// a plain "at least one hour ahead" reading would keep it. Booking rejects
// that instant, so offering it would only produce a failed booking.
func (e *Engine) Available(ctx context.Context, psychologistID uuid.UUID, date Date, now time.Time) (Slots, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.available")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.psychologist_id", psychologistID.String()),
		attribute.String("clinic.date", date.String()),
	)
	started := time.Now()

	slots, err := e.available(ctx, psychologistID, date, now)
	if err != nil {
		span.RecordError(err)
		e.metrics.ObserveSlotQuery(time.Since(started).Seconds(), 0, err)
		return Slots{}, err
	}
	free := 0
	for range slots.All() {
		free++
	}
	span.SetAttributes(attribute.Int("clinic.free_slots", free))
	e.metrics.ObserveSlotQuery(time.Since(started).Seconds(), free, nil)
	return slots, nil
}

func (e *Engine) available(ctx context.Context, psychologistID uuid.UUID, date Date, now time.Time) (Slots, error) {
	tmpl, err := e.templates.Template(ctx, psychologistID)
	if err != nil {
		return Slots{}, fmt.Errorf("scheduling: load template: %w", err)
	}
	loc := tmpl.Location()
	if date.Before(DateOf(now.In(loc))) {
		return emptySlots(date, loc), nil
	}
	hours := tmpl.HoursFor(date.Weekday())
	if hours == nil {
		return emptySlots(date, loc), nil
	}
	openMin, closeMin, err := hours.Minutes()
	if err != nil {
		return Slots{}, fmt.Errorf("scheduling: %w", err)
	}

	dayStart := date.In(loc)
	dayEnd := dayStart.AddDate(0, 0, 1)
	booked, err := e.ledger.ListForPsychologist(ctx, psychologistID, dayStart.UTC(), dayEnd.UTC(), appointments.ActiveStatuses...)
	if err != nil {
		return Slots{}, fmt.Errorf("scheduling: load appointments: %w", err)
	}
	taken := make(map[int64]struct{}, len(booked))
	for _, a := range booked {
		taken[a.ScheduledAt.UTC().UnixNano()] = struct{}{}
	}

	return Slots{
		date:     date,
		loc:      loc,
		openMin:  openMin,
		closeMin: closeMin,
		step:     tmpl.SlotDuration(),
		cutoff:   now.UTC().Add(tmpl.LeadTime()),
		taken:    taken,
	}, nil
}
