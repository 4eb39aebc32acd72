package stats

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/natachasiqueira/clinicamentalize/internal/appointments"
	"github.com/natachasiqueira/clinicamentalize/internal/users"
)

// AppointmentSource is the part of the ledger the dashboard reads.
type AppointmentSource interface {
	Snapshot(ctx context.Context, since time.Time) ([]appointments.Appointment, error)
	Count(ctx context.Context) (int, error)
}

// PeopleSource lists psychologists and counts users per role.
type PeopleSource interface {
	ListPsychologists(ctx context.Context, filter users.ListFilter) ([]users.Psychologist, error)
	CountByRole(ctx context.Context, role users.Role) (int, error)
}

// Loader reads a Snapshot, issuing its queries concurrently.
type Loader struct {
	ledger AppointmentSource
	people PeopleSource
}

func NewLoader(ledger AppointmentSource, people PeopleSource) *Loader {
	if ledger == nil || people == nil {
		panic("stats: ledger and people sources required")
	}
	return &Loader{ledger: ledger, people: people}
}

// Load returns appointments scheduled since since (plus completed ones of any
// age), every psychologist and the all-time totals.
func (l *Loader) Load(ctx context.Context, since time.Time) (Snapshot, error) {
	var snap Snapshot
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		list, err := l.ledger.Snapshot(ctx, since)
		if err != nil {
			return fmt.Errorf("stats: load appointments: %w", err)
		}
		snap.Appointments = list
		return nil
	})
	g.Go(func() error {
		list, err := l.people.ListPsychologists(ctx, users.ListFilter{})
		if err != nil {
			return fmt.Errorf("stats: load psychologists: %w", err)
		}
		snap.Psychologists = make([]Person, 0, len(list))
		for _, p := range list {
			snap.Psychologists = append(snap.Psychologists, Person{ID: p.ID, Name: p.User.FullName})
		}
		return nil
	})
	g.Go(func() error {
		n, err := l.ledger.Count(ctx)
		if err != nil {
			return fmt.Errorf("stats: count appointments: %w", err)
		}
		snap.Totals.Appointments = n
		return nil
	})
	g.Go(func() error {
		n, err := l.people.CountByRole(ctx, users.RolePatient)
		if err != nil {
			return fmt.Errorf("stats: count patients: %w", err)
		}
		snap.Totals.Patients = n
		return nil
	})
	g.Go(func() error {
		n, err := l.people.CountByRole(ctx, users.RolePsychologist)
		if err != nil {
			return fmt.Errorf("stats: count psychologists: %w", err)
		}
		snap.Totals.Psychologists = n
		return nil
	})

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
