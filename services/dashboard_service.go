package services

import (
	"context"
	"fmt"
	"time"

	"github.com/croftbase/member-console/models"
	"github.com/croftbase/member-console/repositories"
	"golang.org/x/sync/errgroup"
)

type DashboardService interface {
	GetStats(ctx context.Context) (*models.DashboardStats, error)
}

type dashboardService struct {
	userRepo         repositories.UserRepository
	sessionRepo      repositories.SessionRepository
	verificationRepo repositories.VerificationRepository
	flagRepo         repositories.FlagRepository
}

func NewDashboardService(
	userRepo repositories.UserRepository,
	sessionRepo repositories.SessionRepository,
	verificationRepo repositories.VerificationRepository,
	flagRepo repositories.FlagRepository,
) DashboardService {
	return &dashboardService{
		userRepo:         userRepo,
		sessionRepo:      sessionRepo,
		verificationRepo: verificationRepo,
		flagRepo:         flagRepo,
	}
}

func (s *dashboardService) GetStats(ctx context.Context) (*models.DashboardStats, error) {
	var (
		userCounts         *models.UserCounts
		activeSessions     int
		pendingInvitations int
		flagsTotal         int
		flagsEnabled       int
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		userCounts, err = s.userRepo.Counts(ctx, time.Now().AddDate(0, 0, -7))
		return err
	})
	g.Go(func() error {
		var err error
		activeSessions, err = s.sessionRepo.CountActive(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		pendingInvitations, err = s.verificationRepo.CountActiveByIdentifierPrefix(ctx, models.ScopeInvitation+":")
		return err
	})
	g.Go(func() error {
		var err error
		flagsTotal, flagsEnabled, err = s.flagRepo.Counts(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to collect dashboard stats: %w", err)
	}

	return &models.DashboardStats{
		UsersTotal:         userCounts.Total,
		BannedUsers:        userCounts.Banned,
		VerifiedUsers:      userCounts.Verified,
		ActiveSessions:     activeSessions,
		PendingInvitations: pendingInvitations,
		FlagsTotal:         flagsTotal,
		FlagsEnabled:       flagsEnabled,
		SignupsLastWeek:    userCounts.CreatedSince,
	}, nil
}
