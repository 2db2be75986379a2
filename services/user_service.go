package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/croftbase/member-console/events"
	"github.com/croftbase/member-console/models"
	"github.com/croftbase/member-console/repositories"
	"github.com/croftbase/member-console/storage"
	"github.com/google/uuid"
)

var ErrUnsupportedImageType = errors.New("unsupported image type")

type UserService interface {
	GetProfile(ctx context.Context, userID int) (*models.User, error)
	UpdateProfile(ctx context.Context, userID int, input UpdateProfileInput) (*models.User, error)

	// UploadAvatar stores the image and replaces the user's previous one.
	UploadAvatar(ctx context.Context, userID int, file io.Reader, contentType string) (*models.User, error)

	// RemoveAvatar clears the user's avatar and deletes the stored object.
	RemoveAvatar(ctx context.Context, userID int) (*models.User, error)

	GetPreferences(ctx context.Context, userID int) (*models.Preferences, error)
	UpdatePreferences(ctx context.Context, userID int, input UpdatePreferencesInput) (*models.Preferences, error)

	// PopulateImageURL fills the outward-facing avatar URL on the user.
	PopulateImageURL(user *models.User)
}

type UpdateProfileInput struct {
	Name   *string `json:"name"`
	Bio    *string `json:"bio"`
	Locale *string `json:"locale"`
}

type UpdatePreferencesInput struct {
	Theme              *string          `json:"theme"`
	Locale             *string          `json:"locale"`
	EmailNotifications *bool            `json:"email_notifications"`
	Digest             *json.RawMessage `json:"digest"`
}

type userService struct {
	userRepo       repositories.UserRepository
	preferenceRepo repositories.PreferenceRepository
	uploader       storage.FileUploader
	publisher      events.Publisher
	logger         *slog.Logger
}

func NewUserService(
	userRepo repositories.UserRepository,
	preferenceRepo repositories.PreferenceRepository,
	uploader storage.FileUploader,
	publisher events.Publisher,
	logger *slog.Logger,
) UserService {
	return &userService{
		userRepo:       userRepo,
		preferenceRepo: preferenceRepo,
		uploader:       uploader,
		publisher:      publisher,
		logger:         logger,
	}
}

func (s *userService) GetProfile(ctx context.Context, userID int) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	s.PopulateImageURL(user)
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, userID int, input UpdateProfileInput) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		user.Name = name
	}
	if input.Bio != nil {
		bio := strings.TrimSpace(*input.Bio)
		if bio == "" {
			user.Bio = nil
		} else {
			user.Bio = &bio
		}
	}
	if input.Locale != nil {
		locale := strings.TrimSpace(*input.Locale)
		if len(locale) < 2 || len(locale) > 16 {
			return nil, fmt.Errorf("%w: locale must be a BCP 47 tag", ErrValidationFailed)
		}
		user.Locale = locale
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update user %d: %w", userID, err)
	}

	s.publisher.Publish("user.updated", map[string]interface{}{"id": user.ID})

	s.PopulateImageURL(user)
	return user, nil
}

func (s *userService) UploadAvatar(ctx context.Context, userID int, file io.Reader, contentType string) (*models.User, error) {
	ext, err := imageExtension(contentType)
	if err != nil {
		return nil, ErrUnsupportedImageType
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}

	key := fmt.Sprintf("avatars/%d/%s%s", userID, uuid.NewString(), ext)
	if _, err := s.uploader.Upload(ctx, key, contentType, file); err != nil {
		return nil, fmt.Errorf("failed to upload avatar: %w", err)
	}

	previous := user.Image
	if err := s.userRepo.UpdateImage(ctx, userID, &key); err != nil {
		return nil, fmt.Errorf("failed to save avatar key: %w", err)
	}
	user.Image = &key

	// Provider-sourced avatars are absolute URLs, not ours to delete.
	if previous != nil && !strings.HasPrefix(*previous, "http") {
		go func(oldKey string) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.uploader.Delete(ctx, oldKey); err != nil {
				s.logger.Warn("failed to delete previous avatar",
					slog.String("key", oldKey),
					slog.Any("error", err),
				)
			}
		}(*previous)
	}

	s.publisher.Publish("user.updated", map[string]interface{}{"id": user.ID})

	s.PopulateImageURL(user)
	return user, nil
}

func (s *userService) RemoveAvatar(ctx context.Context, userID int) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	if user.Image == nil {
		return user, nil
	}

	previous := *user.Image
	if err := s.userRepo.UpdateImage(ctx, userID, nil); err != nil {
		return nil, fmt.Errorf("failed to clear avatar: %w", err)
	}
	user.Image = nil
	user.ImageURL = nil

	if !strings.HasPrefix(previous, "http") {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.uploader.Delete(ctx, previous); err != nil {
				s.logger.Warn("failed to delete removed avatar",
					slog.String("key", previous),
					slog.Any("error", err),
				)
			}
		}()
	}

	s.publisher.Publish("user.updated", map[string]interface{}{"id": user.ID})

	return user, nil
}

func (s *userService) GetPreferences(ctx context.Context, userID int) (*models.Preferences, error) {
	prefs, err := s.preferenceRepo.GetByUserID(ctx, userID)
	if err == nil {
		return prefs, nil
	}
	if !errors.Is(err, repositories.ErrPreferencesNotFound) {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}

	// Heal a missing seed row.
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	seeded := models.DefaultPreferences(userID, user.Locale)
	if err := s.preferenceRepo.Upsert(ctx, &seeded); err != nil {
		return nil, fmt.Errorf("failed to seed preferences: %w", err)
	}
	return &seeded, nil
}

func (s *userService) UpdatePreferences(ctx context.Context, userID int, input UpdatePreferencesInput) (*models.Preferences, error) {
	prefs, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	if input.Theme != nil {
		switch *input.Theme {
		case "system", "light", "dark":
			prefs.Theme = *input.Theme
		default:
			return nil, fmt.Errorf("%w: theme must be system, light or dark", ErrValidationFailed)
		}
	}
	if input.Locale != nil {
		locale := strings.TrimSpace(*input.Locale)
		if len(locale) < 2 || len(locale) > 16 {
			return nil, fmt.Errorf("%w: locale must be a BCP 47 tag", ErrValidationFailed)
		}
		prefs.Locale = locale
	}
	if input.EmailNotifications != nil {
		prefs.EmailNotifications = *input.EmailNotifications
	}
	if input.Digest != nil {
		prefs.Digest = *input.Digest
	}

	if err := s.preferenceRepo.Upsert(ctx, prefs); err != nil {
		return nil, fmt.Errorf("failed to update preferences: %w", err)
	}
	return prefs, nil
}

func (s *userService) PopulateImageURL(user *models.User) {
	if user == nil || user.Image == nil || *user.Image == "" {
		return
	}
	if strings.HasPrefix(*user.Image, "http") {
		user.ImageURL = user.Image
		return
	}
	if s.uploader == nil {
		return
	}
	if url := s.uploader.PublicURL(*user.Image); url != "" {
		user.ImageURL = &url
	}
}
