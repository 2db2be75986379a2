package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/croftbase/member-console/events"
	"github.com/croftbase/member-console/models"
	"github.com/croftbase/member-console/repositories"
	"github.com/croftbase/member-console/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ErrSelfTarget guards admins from locking themselves out.
var ErrSelfTarget = errors.New("admins cannot perform this action on their own account")

type AdminService interface {
	ListUsers(ctx context.Context, filter models.UserFilter) (*models.UserListResult, error)
	GetUser(ctx context.Context, userID int) (*models.User, error)

	// SetRole changes a user's role. Admins cannot change their own.
	SetRole(ctx context.Context, actorID, userID int, role models.UserRole) (*models.User, error)

	// Ban blocks the account and revokes its open sessions.
	Ban(ctx context.Context, actorID, userID int, reason string) (*models.User, error)
	Unban(ctx context.Context, actorID, userID int) (*models.User, error)

	DeleteUser(ctx context.Context, actorID, userID int) error

	ListSessions(ctx context.Context, userID int) ([]models.Session, error)
	RevokeSessions(ctx context.Context, userID int) (int64, error)
}

type adminService struct {
	userRepo  repositories.UserRepository
	sessions  SessionService
	uploader  storage.FileUploader
	publisher events.Publisher
	logger    *slog.Logger
}

func NewAdminService(
	userRepo repositories.UserRepository,
	sessions SessionService,
	uploader storage.FileUploader,
	publisher events.Publisher,
	logger *slog.Logger,
) AdminService {
	return &adminService{
		userRepo:  userRepo,
		sessions:  sessions,
		uploader:  uploader,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *adminService) ListUsers(ctx context.Context, filter models.UserFilter) (*models.UserListResult, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > maxPageSize {
		filter.Limit = defaultPageSize
	}

	users, total, err := s.userRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	for i := range users {
		s.populateImageURL(&users[i])
	}

	return &models.UserListResult{
		Users:      users,
		TotalCount: total,
		Page:       filter.Page,
		Limit:      filter.Limit,
	}, nil
}

func (s *adminService) GetUser(ctx context.Context, userID int) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	s.populateImageURL(user)
	return user, nil
}

func (s *adminService) SetRole(ctx context.Context, actorID, userID int, role models.UserRole) (*models.User, error) {
	if actorID == userID {
		return nil, ErrSelfTarget
	}
	if !models.ValidRole(role) {
		return nil, ErrInvalidRole
	}

	if err := s.userRepo.UpdateRole(ctx, userID, role); err != nil {
		switch {
		case errors.Is(err, repositories.ErrUserNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repositories.ErrUserRoleInvalid):
			return nil, ErrInvalidRole
		default:
			return nil, fmt.Errorf("failed to update role for user %d: %w", userID, err)
		}
	}

	s.publisher.Publish("user.role_changed", map[string]interface{}{
		"id":       userID,
		"role":     role,
		"actor_id": actorID,
	})

	return s.GetUser(ctx, userID)
}

func (s *adminService) Ban(ctx context.Context, actorID, userID int, reason string) (*models.User, error) {
	if actorID == userID {
		return nil, ErrSelfTarget
	}

	var reasonPtr *string
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		reasonPtr = &trimmed
	}

	if err := s.userRepo.SetBanned(ctx, userID, true, reasonPtr); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to ban user %d: %w", userID, err)
	}

	// A ban takes effect immediately, not at next token expiry.
	if _, err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return nil, err
	}

	s.publisher.Publish("user.banned", map[string]interface{}{
		"id":       userID,
		"reason":   derefString(reasonPtr),
		"actor_id": actorID,
	})

	return s.GetUser(ctx, userID)
}

func (s *adminService) Unban(ctx context.Context, actorID, userID int) (*models.User, error) {
	if err := s.userRepo.SetBanned(ctx, userID, false, nil); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to unban user %d: %w", userID, err)
	}

	s.publisher.Publish("user.unbanned", map[string]interface{}{
		"id":       userID,
		"actor_id": actorID,
	})

	return s.GetUser(ctx, userID)
}

func (s *adminService) DeleteUser(ctx context.Context, actorID, userID int) error {
	if actorID == userID {
		return ErrSelfTarget
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get user %d: %w", userID, err)
	}

	if err := s.userRepo.Delete(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete user %d: %w", userID, err)
	}

	if user.Image != nil && !strings.HasPrefix(*user.Image, "http") {
		go func(key string) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.uploader.Delete(ctx, key); err != nil {
				s.logger.Warn("failed to delete avatar of removed user",
					slog.String("key", key),
					slog.Any("error", err),
				)
			}
		}(*user.Image)
	}

	s.publisher.Publish("user.deleted", map[string]interface{}{
		"id":       userID,
		"actor_id": actorID,
	})

	return nil
}

func (s *adminService) ListSessions(ctx context.Context, userID int) ([]models.Session, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.sessions.ListForUser(ctx, userID)
}

func (s *adminService) RevokeSessions(ctx context.Context, userID int) (int64, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return 0, err
	}
	return s.sessions.RevokeAllForUser(ctx, userID)
}

func (s *adminService) populateImageURL(user *models.User) {
	if user.Image == nil || *user.Image == "" {
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
