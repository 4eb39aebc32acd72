package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/natachasiqueira/clinicamentalize/internal/compliance"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// RegisterRequest carries the fields of a new account.
type RegisterRequest struct {
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ProfileUpdate changes contact data and optionally the password.
type ProfileUpdate struct {
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	NewPassword     string `json:"new_password,omitempty"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
}

// Service implements account workflows on top of a Repository.
type Service struct {
	repo   Repository
	audit  compliance.Recorder
	logger *logging.Logger
	cost   int
}

// NewService constructs a users service. audit may be nil.
func NewService(repo Repository, audit compliance.Recorder, logger *logging.Logger) *Service {
	if repo == nil {
		panic("users: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, cost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost (tests use bcrypt.MinCost).
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

// Repository exposes the underlying store for read-only handlers.
func (s *Service) Repository() Repository {
	return s.repo
}

func (r RegisterRequest) validate() error {
	fields := map[string]string{
		"full_name":        r.FullName,
		"email":            r.Email,
		"phone":            r.Phone,
		"password":         r.Password,
		"confirm_password": r.ConfirmPassword,
	}
	for _, name := range []string{"full_name", "email", "phone", "password", "confirm_password"} {
		if strings.TrimSpace(fields[name]) == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, name)
		}
	}
	return validatePassword(r.Password, r.ConfirmPassword)
}

func validatePassword(password, confirm string) error {
	if password != confirm {
		return ErrPasswordMismatch
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

func (s *Service) newUser(ctx context.Context, req RegisterRequest) (User, error) {
	if err := req.validate(); err != nil {
		return User{}, err
	}
	if _, err := s.repo.GetUserByEmail(ctx, req.Email); err == nil {
		return User{}, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	return User{
		FullName:     strings.TrimSpace(req.FullName),
		Email:        normalizeEmail(req.Email),
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: string(hash),
		Active:       true,
	}, nil
}

// RegisterPsychologist creates a psychologist account on behalf of an admin.
func (s *Service) RegisterPsychologist(ctx context.Context, actorID uuid.UUID, req RegisterRequest) (*Psychologist, error) {
	user, err := s.newUser(ctx, req)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.CreatePsychologist(ctx, user)
	if err != nil {
		return nil, err
	}
	s.record(ctx, compliance.EventPsychologistRegistered, actorID, p.User.ID, map[string]string{"psychologist_id": p.ID.String()})
	s.logger.Info("psychologist registered", "psychologist_id", p.ID, "user_id", p.User.ID)
	return p, nil
}

// RegisterPatient creates a patient account (self-service signup).
func (s *Service) RegisterPatient(ctx context.Context, req RegisterRequest) (*Patient, error) {
	user, err := s.newUser(ctx, req)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.CreatePatient(ctx, user)
	if err != nil {
		return nil, err
	}
	s.record(ctx, compliance.EventPatientRegistered, p.User.ID, p.User.ID, map[string]string{"patient_id": p.ID.String()})
	s.logger.Info("patient registered", "patient_id", p.ID, "user_id", p.User.ID)
	return p, nil
}

// UpdateProfile edits the caller's own account.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, req ProfileUpdate) (*User, error) {
	if strings.TrimSpace(req.FullName) == "" || strings.TrimSpace(req.Email) == "" {
		return nil, fmt.Errorf("%w: full_name, email", ErrMissingField)
	}
	current, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	updated := *current
	updated.FullName = strings.TrimSpace(req.FullName)
	updated.Email = normalizeEmail(req.Email)
	updated.Phone = strings.TrimSpace(req.Phone)
	updated.PasswordHash = ""
	if req.NewPassword != "" {
		if err := validatePassword(req.NewPassword, req.ConfirmPassword); err != nil {
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.cost)
		if err != nil {
			return nil, fmt.Errorf("users: hash password: %w", err)
		}
		updated.PasswordHash = string(hash)
	}
	if err := s.repo.UpdateUser(ctx, updated); err != nil {
		return nil, err
	}
	s.record(ctx, compliance.EventProfileUpdated, userID, userID, map[string]bool{"password_changed": req.NewPassword != ""})
	if updated.PasswordHash == "" {
		updated.PasswordHash = current.PasswordHash
	}
	return &updated, nil
}

// Deactivate disables an account. Users are never hard-deleted so historical
// appointments keep their references.
func (s *Service) Deactivate(ctx context.Context, actorID, userID uuid.UUID) error {
	if err := s.repo.SetActive(ctx, userID, false); err != nil {
		return err
	}
	s.record(ctx, compliance.EventUserDeactivated, actorID, userID, nil)
	s.logger.Info("user deactivated", "user_id", userID, "actor_id", actorID)
	return nil
}

// Authenticate checks credentials for login.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.Active {
		return nil, ErrInactive
	}
	return u, nil
}

// EnsureAdmin seeds the first administrator. It does nothing when an admin
// already exists or no password is configured.
func (s *Service) EnsureAdmin(ctx context.Context, email, name, password string) (bool, error) {
	if password == "" {
		return false, nil
	}
	n, err := s.repo.CountByRole(ctx, RoleAdmin)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if len(password) < MinPasswordLength {
		return false, ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return false, fmt.Errorf("users: hash password: %w", err)
	}
	admin, err := s.repo.CreateAdmin(ctx, User{
		FullName:     name,
		Email:        email,
		PasswordHash: string(hash),
		Active:       true,
	})
	if err != nil {
		return false, err
	}
	s.logger.Info("default admin created", "user_id", admin.ID, "email", admin.Email)
	return true, nil
}

func (s *Service) record(ctx context.Context, eventType compliance.AuditEventType, actorID, subjectID uuid.UUID, details any) {
	if s.audit == nil {
		return
	}
	actor := ""
	if actorID != uuid.Nil {
		actor = actorID.String()
	}
	if err := s.audit.Record(ctx, eventType, actor, subjectID.String(), details); err != nil {
		s.logger.Warn("audit record failed", "event_type", eventType, "error", err)
	}
}
