// Package service contains the business logic layer.
//
// Handlers parse HTTP and write responses; services validate, enforce rules,
// and orchestrate; repositories read and write durable storage. Services are
// written against the repository interfaces, so tests inject in-memory
// fakes and no service ever imports the sqlite package.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fredhq/companion/internal/apperror"
	"github.com/fredhq/companion/internal/model"
	"github.com/fredhq/companion/internal/repository"
)

// UserService handles the account lifecycle driven by the identity
// provider's webhook events, plus user lookups for the REST surface.
type UserService struct {
	repo   repository.UserRepository
	logger *slog.Logger
}

func NewUserService(repo repository.UserRepository, logger *slog.Logger) *UserService {
	return &UserService{repo: repo, logger: logger}
}

// Register provisions an account for a provider "user created" event.
func (s *UserService) Register(ctx context.Context, user *model.User) (*model.User, error) {
	user.ExternalID = strings.TrimSpace(user.ExternalID)
	if user.ExternalID == "" {
		return nil, apperror.ValidationFailed("externalId", "external user ID is required")
	}

	if err := s.repo.Create(ctx, user); err != nil {
		s.logger.Error("failed to create user",
			slog.String("externalId", user.ExternalID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user created",
		slog.String("id", user.ID),
		slog.String("externalId", user.ExternalID),
	)
	return user, nil
}

// UpdateProfile applies a provider "user updated" event.
func (s *UserService) UpdateProfile(ctx context.Context, externalID string, upd repository.UserUpdate) (*model.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, apperror.ValidationFailed("externalId", "external user ID is required")
	}

	user, err := s.repo.Update(ctx, externalID, upd)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user updated", slog.String("externalId", externalID))
	return user, nil
}

// Deactivate applies a provider "user deleted" event as a soft delete.
func (s *UserService) Deactivate(ctx context.Context, externalID string) error {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return apperror.ValidationFailed("externalId", "external user ID is required")
	}

	if err := s.repo.Deactivate(ctx, externalID); err != nil {
		return err
	}

	s.logger.Info("user deactivated", slog.String("externalId", externalID))
	return nil
}

// RecordSignIn applies a provider "session created" event.
func (s *UserService) RecordSignIn(ctx context.Context, externalID string) error {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return apperror.ValidationFailed("externalId", "external user ID is required")
	}
	return s.repo.TouchLastSignIn(ctx, externalID)
}

// GetByExternalID resolves a user by the identity provider's ID.
func (s *UserService) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, apperror.ValidationFailed("externalId", "external user ID is required")
	}
	return s.repo.GetByExternalID(ctx, externalID)
}
