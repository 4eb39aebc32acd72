package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNoStore is returned by writes when redis is not configured.
var ErrNoStore = errors.New("clinic: redis not configured")

// Store provides persistence for clinic settings. A nil redis client serves
// the defaults read-only.
type Store struct {
	redis    *redis.Client
	defaults Settings
}

// NewStore creates a new settings store.
func NewStore(redisClient *redis.Client, defaults *Settings) *Store {
	if defaults == nil {
		defaults = DefaultSettings("", 0)
	}
	return &Store{redis: redisClient, defaults: *defaults}
}

const settingsKey = "clinic:settings"

func psychologistHoursKey(id uuid.UUID) string {
	return fmt.Sprintf("clinic:psychologist_hours:%s", id)
}

func (s *Store) defaultCopy() *Settings {
	cfg := s.defaults
	return &cfg
}

// Get retrieves the settings, returning defaults if not found.
func (s *Store) Get(ctx context.Context) (*Settings, error) {
	if s.redis == nil {
		return s.defaultCopy(), nil
	}
	data, err := s.redis.Get(ctx, settingsKey).Bytes()
	if err == redis.Nil {
		return s.defaultCopy(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get settings: %w", err)
	}

	var cfg Settings
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal settings: %w", err)
	}
	return &cfg, nil
}

// Set validates and saves the settings.
func (s *Store) Set(ctx context.Context, cfg *Settings) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if s.redis == nil {
		return ErrNoStore
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("clinic: marshal settings: %w", err)
	}
	if err := s.redis.Set(ctx, settingsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set settings: %w", err)
	}
	return nil
}

// GetPsychologistHours returns the psychologist's own hours, or nil when the
// clinic hours apply.
func (s *Store) GetPsychologistHours(ctx context.Context, psychologistID uuid.UUID) (*BusinessHours, error) {
	if s.redis == nil {
		return nil, nil
	}
	data, err := s.redis.Get(ctx, psychologistHoursKey(psychologistID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get psychologist hours: %w", err)
	}
	var hours BusinessHours
	if err := json.Unmarshal(data, &hours); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal psychologist hours: %w", err)
	}
	return &hours, nil
}

// SetPsychologistHours saves an override. A nil hours value removes it.
func (s *Store) SetPsychologistHours(ctx context.Context, psychologistID uuid.UUID, hours *BusinessHours) error {
	if s.redis == nil {
		return ErrNoStore
	}
	if hours == nil {
		if err := s.redis.Del(ctx, psychologistHoursKey(psychologistID)).Err(); err != nil {
			return fmt.Errorf("clinic: delete psychologist hours: %w", err)
		}
		return nil
	}
	if err := hours.validate(); err != nil {
		return err
	}
	data, err := json.Marshal(hours)
	if err != nil {
		return fmt.Errorf("clinic: marshal psychologist hours: %w", err)
	}
	if err := s.redis.Set(ctx, psychologistHoursKey(psychologistID), data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set psychologist hours: %w", err)
	}
	return nil
}

// Template returns the settings that apply to one psychologist: clinic
// settings with the psychologist's hours when an override exists.
func (s *Store) Template(ctx context.Context, psychologistID uuid.UUID) (*Settings, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	hours, err := s.GetPsychologistHours(ctx, psychologistID)
	if err != nil {
		return nil, err
	}
	if hours != nil {
		cfg.BusinessHours = *hours
	}
	return cfg, nil
}
