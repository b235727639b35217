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

const (
	MaxSections       = 20
	MaxHeadingLength  = 200
	MaxContentLength  = 20000 // ~20KB per section; essays stay small
	DefaultEssayLimit = 5
	MaxEssayLimit     = 50
)

// EssayService handles the Living Essay read and write paths.
//
// The write path here (SubmitSections) is the direct one: the UI posts a new
// section set and a version is appended without any generation involved.
// Generation-driven writes go through GenerationService instead.
type EssayService struct {
	essays repository.EssayRepository
	users  repository.UserRepository
	logger *slog.Logger
}

func NewEssayService(essays repository.EssayRepository, users repository.UserRepository, logger *slog.Logger) *EssayService {
	return &EssayService{essays: essays, users: users, logger: logger}
}

// validateSections enforces the shape rules shared by direct submissions
// and generated content: at least one section, every heading non-empty, and
// per-field size bounds.
func validateSections(sections []model.Section) error {
	if len(sections) == 0 {
		return apperror.ValidationFailed("sections", "at least one section is required")
	}
	if len(sections) > MaxSections {
		return apperror.ValidationFailed("sections",
			fmt.Sprintf("at most %d sections are allowed", MaxSections))
	}
	for i, s := range sections {
		if strings.TrimSpace(s.Heading) == "" {
			return apperror.ValidationFailed("sections",
				fmt.Sprintf("section %d has an empty heading", i))
		}
		if len(s.Heading) > MaxHeadingLength {
			return apperror.ValidationFailed("sections",
				fmt.Sprintf("section %d heading exceeds %d characters", i, MaxHeadingLength))
		}
		if len(s.Content) > MaxContentLength {
			return apperror.ValidationFailed("sections",
				fmt.Sprintf("section %d content exceeds %d characters", i, MaxContentLength))
		}
	}
	return nil
}

// SubmitSections appends a new essay version for the user identified by
// their external auth ID.
func (s *EssayService) SubmitSections(ctx context.Context, externalID string, sections []model.Section) (*model.EssayVersion, error) {
	if err := validateSections(sections); err != nil {
		return nil, err
	}

	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	version, err := s.essays.CreateVersion(ctx, user.ID, sections)
	if err != nil {
		s.logger.Error("failed to create essay version",
			slog.String("userId", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating essay version: %w", err)
	}

	s.logger.Info("essay version created",
		slog.String("id", version.ID),
		slog.String("userId", user.ID),
		slog.Int("version", version.Version),
	)
	return version, nil
}

// RecentVersions returns a user's newest essay versions, most recent first.
// A user with no versions yields an empty list, not an error.
func (s *EssayService) RecentVersions(ctx context.Context, externalID string, limit int) ([]model.EssayVersion, error) {
	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultEssayLimit
	}
	if limit > MaxEssayLimit {
		limit = MaxEssayLimit
	}

	versions, err := s.essays.GetRecentVersions(ctx, user.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing essay versions: %w", err)
	}
	return versions, nil
}

// VersionByNumber fetches one numbered version of a user's chain.
func (s *EssayService) VersionByNumber(ctx context.Context, externalID string, version int) (*model.EssayVersion, error) {
	if version < 1 {
		return nil, apperror.ValidationFailed("version", "version numbers start at 1")
	}
	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return s.essays.GetVersionByNumber(ctx, user.ID, version)
}
