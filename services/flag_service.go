package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/croftbase/member-console/events"
	"github.com/croftbase/member-console/models"
	"github.com/croftbase/member-console/repositories"
)

var (
	ErrFlagNotFound     = errors.New("feature flag not found")
	ErrFlagNameConflict = errors.New("feature flag name already exists")
	ErrFlagNameInvalid  = errors.New("feature flag name must be a lowercase slug")
)

// Flag names are slugs: lowercase, digits, hyphens and underscores,
// starting with a letter.
var flagNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,63}$`)

type FlagService interface {
	// Evaluate returns the enabled state of every flag, keyed by name.
	Evaluate(ctx context.Context) (map[string]bool, error)

	// EvaluateOne returns the enabled state of a single flag.
	EvaluateOne(ctx context.Context, name string) (bool, error)

	List(ctx context.Context) ([]models.FeatureFlag, error)
	Create(ctx context.Context, input CreateFlagInput) (*models.FeatureFlag, error)
	Update(ctx context.Context, id int, input UpdateFlagInput) (*models.FeatureFlag, error)
	Toggle(ctx context.Context, id int, enabled bool) (*models.FeatureFlag, error)
	Delete(ctx context.Context, id int) error
}

type CreateFlagInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Enabled     bool            `json:"enabled"`
	Metadata    json.RawMessage `json:"metadata"`
}

type UpdateFlagInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Metadata    *json.RawMessage `json:"metadata"`
}

type flagService struct {
	flagRepo  repositories.FlagRepository
	publisher events.Publisher
}

func NewFlagService(flagRepo repositories.FlagRepository, publisher events.Publisher) FlagService {
	return &flagService{
		flagRepo:  flagRepo,
		publisher: publisher,
	}
}

func (s *flagService) Evaluate(ctx context.Context) (map[string]bool, error) {
	flags, err := s.flagRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate flags: %w", err)
	}

	evaluated := make(map[string]bool, len(flags))
	for _, flag := range flags {
		evaluated[flag.Name] = flag.Enabled
	}
	return evaluated, nil
}

func (s *flagService) EvaluateOne(ctx context.Context, name string) (bool, error) {
	flag, err := s.flagRepo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repositories.ErrFlagNotFound) {
			return false, ErrFlagNotFound
		}
		return false, fmt.Errorf("failed to evaluate flag %q: %w", name, err)
	}
	return flag.Enabled, nil
}

func (s *flagService) List(ctx context.Context) ([]models.FeatureFlag, error) {
	flags, err := s.flagRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list flags: %w", err)
	}
	return flags, nil
}

func (s *flagService) Create(ctx context.Context, input CreateFlagInput) (*models.FeatureFlag, error) {
	name := strings.TrimSpace(input.Name)
	if !flagNamePattern.MatchString(name) {
		return nil, ErrFlagNameInvalid
	}

	flag := &models.FeatureFlag{
		Name:        name,
		Enabled:     input.Enabled,
		Description: strings.TrimSpace(input.Description),
		Metadata:    input.Metadata,
	}
	if err := s.flagRepo.Create(ctx, flag); err != nil {
		if errors.Is(err, repositories.ErrFlagNameConflict) {
			return nil, ErrFlagNameConflict
		}
		return nil, fmt.Errorf("failed to create flag: %w", err)
	}

	s.publisher.Publish("flag.created", map[string]interface{}{
		"id":      flag.ID,
		"name":    flag.Name,
		"enabled": flag.Enabled,
	})

	return flag, nil
}

func (s *flagService) Update(ctx context.Context, id int, input UpdateFlagInput) (*models.FeatureFlag, error) {
	flag, err := s.flagRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrFlagNotFound) {
			return nil, ErrFlagNotFound
		}
		return nil, fmt.Errorf("failed to get flag %d: %w", id, err)
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if !flagNamePattern.MatchString(name) {
			return nil, ErrFlagNameInvalid
		}
		flag.Name = name
	}
	if input.Description != nil {
		flag.Description = strings.TrimSpace(*input.Description)
	}
	if input.Metadata != nil {
		flag.Metadata = *input.Metadata
	}

	if err := s.flagRepo.Update(ctx, flag); err != nil {
		switch {
		case errors.Is(err, repositories.ErrFlagNotFound):
			return nil, ErrFlagNotFound
		case errors.Is(err, repositories.ErrFlagNameConflict):
			return nil, ErrFlagNameConflict
		default:
			return nil, fmt.Errorf("failed to update flag %d: %w", id, err)
		}
	}

	s.publisher.Publish("flag.updated", map[string]interface{}{
		"id":      flag.ID,
		"name":    flag.Name,
		"enabled": flag.Enabled,
	})

	return flag, nil
}

func (s *flagService) Toggle(ctx context.Context, id int, enabled bool) (*models.FeatureFlag, error) {
	flag, err := s.flagRepo.SetEnabled(ctx, id, enabled)
	if err != nil {
		if errors.Is(err, repositories.ErrFlagNotFound) {
			return nil, ErrFlagNotFound
		}
		return nil, fmt.Errorf("failed to toggle flag %d: %w", id, err)
	}

	s.publisher.Publish("flag.toggled", map[string]interface{}{
		"id":      flag.ID,
		"name":    flag.Name,
		"enabled": flag.Enabled,
	})

	return flag, nil
}

func (s *flagService) Delete(ctx context.Context, id int) error {
	if err := s.flagRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrFlagNotFound) {
			return ErrFlagNotFound
		}
		return fmt.Errorf("failed to delete flag %d: %w", id, err)
	}

	s.publisher.Publish("flag.deleted", map[string]interface{}{"id": id})
	return nil
}
