package users

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Directory is the read side the scheduling core depends on.
type Directory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPsychologist(ctx context.Context, id uuid.UUID) (*Psychologist, error)
}

// Repository persists users and their role extensions.
type Repository interface {
	Directory

	CreatePatient(ctx context.Context, user User) (*Patient, error)
	CreatePsychologist(ctx context.Context, user User) (*Psychologist, error)
	CreateAdmin(ctx context.Context, user User) (*User, error)

	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	PatientForUser(ctx context.Context, userID uuid.UUID) (*Patient, error)
	PsychologistForUser(ctx context.Context, userID uuid.UUID) (*Psychologist, error)

	ListPatients(ctx context.Context, filter ListFilter) ([]Patient, error)
	ListPsychologists(ctx context.Context, filter ListFilter) ([]Psychologist, error)
	CountByRole(ctx context.Context, role Role) (int, error)

	UpdateUser(ctx context.Context, user User) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// InMemoryRepository implements Repository for tests and local runs.
type InMemoryRepository struct {
	mu            sync.RWMutex
	users         map[uuid.UUID]User
	patients      map[uuid.UUID]uuid.UUID // patient ID -> user ID
	psychologists map[uuid.UUID]uuid.UUID // psychologist ID -> user ID
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:         make(map[uuid.UUID]User),
		patients:      make(map[uuid.UUID]uuid.UUID),
		psychologists: make(map[uuid.UUID]uuid.UUID),
	}
}

func (r *InMemoryRepository) insertUser(user User) (User, error) {
	email := normalizeEmail(user.Email)
	for _, existing := range r.users {
		if existing.Email == email {
			return User{}, ErrEmailTaken
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = email
	r.users[user.ID] = user
	return user, nil
}

func (r *InMemoryRepository) CreatePatient(ctx context.Context, user User) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.Role = RolePatient
	stored, err := r.insertUser(user)
	if err != nil {
		return nil, err
	}
	p := Patient{ID: uuid.New(), User: stored}
	r.patients[p.ID] = stored.ID
	return &p, nil
}

func (r *InMemoryRepository) CreatePsychologist(ctx context.Context, user User) (*Psychologist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.Role = RolePsychologist
	stored, err := r.insertUser(user)
	if err != nil {
		return nil, err
	}
	p := Psychologist{ID: uuid.New(), User: stored}
	r.psychologists[p.ID] = stored.ID
	return &p, nil
}

func (r *InMemoryRepository) CreateAdmin(ctx context.Context, user User) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.Role = RoleAdmin
	stored, err := r.insertUser(user)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *InMemoryRepository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r *InMemoryRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	email = normalizeEmail(email)
	for _, u := range r.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryRepository) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Patient{ID: id, User: r.users[userID]}, nil
}

func (r *InMemoryRepository) GetPsychologist(ctx context.Context, id uuid.UUID) (*Psychologist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.psychologists[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Psychologist{ID: id, User: r.users[userID]}, nil
}

func (r *InMemoryRepository) PatientForUser(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, uid := range r.patients {
		if uid == userID {
			return &Patient{ID: id, User: r.users[uid]}, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryRepository) PsychologistForUser(ctx context.Context, userID uuid.UUID) (*Psychologist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, uid := range r.psychologists {
		if uid == userID {
			return &Psychologist{ID: id, User: r.users[uid]}, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryRepository) ListPatients(ctx context.Context, filter ListFilter) ([]Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Patient{}
	for id, uid := range r.patients {
		if u := r.users[uid]; filter.matches(u) {
			out = append(out, Patient{ID: id, User: u})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return lessByName(out[i].User, out[j].User, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (r *InMemoryRepository) ListPsychologists(ctx context.Context, filter ListFilter) ([]Psychologist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Psychologist{}
	for id, uid := range r.psychologists {
		if u := r.users[uid]; filter.matches(u) {
			out = append(out, Psychologist{ID: id, User: u})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return lessByName(out[i].User, out[j].User, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (r *InMemoryRepository) CountByRole(ctx context.Context, role Role) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, u := range r.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (r *InMemoryRepository) UpdateUser(ctx context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	email := normalizeEmail(user.Email)
	for id, other := range r.users {
		if id != user.ID && other.Email == email {
			return ErrEmailTaken
		}
	}
	existing.FullName = user.FullName
	existing.Email = email
	existing.Phone = user.Phone
	if user.PasswordHash != "" {
		existing.PasswordHash = user.PasswordHash
	}
	r.users[user.ID] = existing
	return nil
}

func (r *InMemoryRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Active = active
	r.users[id] = u
	return nil
}

func lessByName(a, b User, aID, bID uuid.UUID) bool {
	if a.FullName != b.FullName {
		return a.FullName < b.FullName
	}
	return aID.String() < bID.String()
}
