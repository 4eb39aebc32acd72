package appointments

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/natachasiqueira/clinicamentalize/internal/users"
)

// MemoryLedger implements Ledger in memory for tests and local runs.
type MemoryLedger struct {
	mu    sync.RWMutex
	items map[uuid.UUID]Appointment
	dir   users.Directory
	now   func() time.Time
}

// NewMemoryLedger creates an empty ledger. dir resolves participant names for
// Search and may be nil.
func NewMemoryLedger(dir users.Directory) *MemoryLedger {
	return &MemoryLedger{items: make(map[uuid.UUID]Appointment), dir: dir, now: time.Now}
}

func (l *MemoryLedger) ListForPsychologist(ctx context.Context, psychologistID uuid.UUID, from, to time.Time, statuses ...Status) ([]Appointment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []Appointment{}
	for _, a := range l.items {
		if a.PsychologistID != psychologistID || !statusIn(a.Status, statuses) {
			continue
		}
		if a.ScheduledAt.Before(from) || !a.ScheduledAt.Before(to) {
			continue
		}
		out = append(out, a)
	}
	sortChronological(out)
	return out, nil
}

func (l *MemoryLedger) Snapshot(ctx context.Context, since time.Time) ([]Appointment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []Appointment{}
	for _, a := range l.items {
		if !a.ScheduledAt.Before(since) || a.Status == StatusCompleted {
			out = append(out, a)
		}
	}
	sortChronological(out)
	return out, nil
}

func (l *MemoryLedger) Count(ctx context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items), nil
}

func (l *MemoryLedger) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (l *MemoryLedger) Insert(ctx context.Context, appt Appointment) (uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	if _, exists := l.items[appt.ID]; exists {
		return uuid.Nil, fmt.Errorf("appointments: duplicate id %s", appt.ID)
	}
	if appt.Status == "" {
		appt.Status = StatusScheduled
	}
	appt.ScheduledAt = appt.ScheduledAt.UTC()
	appt.CreatedAt = l.now().UTC()
	appt.UpdatedAt = appt.CreatedAt
	l.items[appt.ID] = appt
	return appt.ID, nil
}

func (l *MemoryLedger) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, actorID uuid.UUID) (*StatusChange, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	from := a.Status
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	a.Status = to
	a.UpdatedAt = l.now().UTC()
	l.items[id] = a
	return &StatusChange{Appointment: a, From: from, ActorID: actorID}, nil
}

func (l *MemoryLedger) Search(ctx context.Context, filter Filter) ([]Row, error) {
	l.mu.RLock()
	all := make([]Appointment, 0, len(l.items))
	for _, a := range l.items {
		all = append(all, a)
	}
	l.mu.RUnlock()

	out := []Row{}
	for _, a := range all {
		r := Row{Appointment: a, StatusLabel: a.Status.Label()}
		if l.dir != nil {
			if p, err := l.dir.GetPatient(ctx, a.PatientID); err == nil {
				r.PatientName = p.User.FullName
			}
			if p, err := l.dir.GetPsychologist(ctx, a.PsychologistID); err == nil {
				r.PsychologistName = p.User.FullName
			}
		}
		if filter.matches(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.After(out[j].ScheduledAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit := filter.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortChronological(items []Appointment) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].ScheduledAt.Equal(items[j].ScheduledAt) {
			return items[i].ScheduledAt.Before(items[j].ScheduledAt)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
}
