package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fredhq/companion/internal/apperror"
	"github.com/fredhq/companion/internal/model"
	"github.com/fredhq/companion/internal/repository"
)

const (
	DefaultTidbitLimit = 4
	MaxTidbitLimit     = 50
)

// TidbitService serves tidbit reads and the relevance-scoring write path.
type TidbitService struct {
	tidbits repository.TidbitRepository
	users   repository.UserRepository
	logger  *slog.Logger
}

func NewTidbitService(tidbits repository.TidbitRepository, users repository.UserRepository, logger *slog.Logger) *TidbitService {
	return &TidbitService{tidbits: tidbits, users: users, logger: logger}
}

// TopRelevant returns the user's highest-scored tidbits. Ties resolve by
// creation order, oldest first.
func (s *TidbitService) TopRelevant(ctx context.Context, externalID string, limit int) ([]model.Tidbit, error) {
	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return s.tidbits.GetTopRelevant(ctx, user.ID, clampTidbitLimit(limit))
}

// Recent returns the user's newest tidbits.
func (s *TidbitService) Recent(ctx context.Context, externalID string, limit int) ([]model.Tidbit, error) {
	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return s.tidbits.GetRecent(ctx, user.ID, clampTidbitLimit(limit))
}

// TouchRelevance re-scores a tidbit and stamps its last-used time. A missing
// tidbit surfaces as NotFound rather than faulting; the scoring process
// logs and moves on.
func (s *TidbitService) TouchRelevance(ctx context.Context, tidbitID string, newScore float64) error {
	if tidbitID == "" {
		return apperror.ValidationFailed("tidbitId", "tidbit ID is required")
	}

	if err := s.tidbits.TouchRelevance(ctx, tidbitID, newScore); err != nil {
		return fmt.Errorf("touching tidbit relevance: %w", err)
	}

	s.logger.Info("tidbit relevance updated",
		slog.String("id", tidbitID),
		slog.Float64("score", newScore),
	)
	return nil
}

func clampTidbitLimit(limit int) int {
	if limit <= 0 {
		return DefaultTidbitLimit
	}
	if limit > MaxTidbitLimit {
		return MaxTidbitLimit
	}
	return limit
}
