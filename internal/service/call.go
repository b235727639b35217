package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fredhq/companion/internal/apperror"
	"github.com/fredhq/companion/internal/generation"
	"github.com/fredhq/companion/internal/model"
	"github.com/fredhq/companion/internal/repository"
)

const (
	DefaultCallLimit = 10
	MaxCallLimit     = 50
)

// EssayGenerator triggers an essay-generation run off a finished call.
// GenerationService is the real implementation; tests inject a fake.
type EssayGenerator interface {
	GenerateFromCall(ctx context.Context, call *model.CallSummary) (*generation.GeneratedContent, error)
}

// CallService handles end-of-call reports from the voice provider and
// serves call history for the REST surface.
type CallService struct {
	calls     repository.CallRepository
	users     repository.UserRepository
	generator EssayGenerator
	logger    *slog.Logger
}

func NewCallService(
	calls repository.CallRepository,
	users repository.UserRepository,
	generator EssayGenerator,
	logger *slog.Logger,
) *CallService {
	return &CallService{calls: calls, users: users, generator: generator, logger: logger}
}

// ProcessEndOfCall stores one end-of-call report and, when the call resolved
// to a known user, kicks off essay generation.
//
// Deliveries are idempotent on the provider's call id: a repeat delivery is
// detected, skipped, and reported as success so the provider stops
// retrying. Generation failures are logged but never fail the webhook;
// the call record itself is already safely stored, and losing the
// generation run is recoverable while a 5xx would make the provider
// re-deliver a call we already have.
func (s *CallService) ProcessEndOfCall(ctx context.Context, call *model.CallSummary) error {
	if call.CallID == "" {
		return apperror.ValidationFailed("callId", "call ID is required")
	}

	_, err := s.calls.GetCallSummaryByCallID(ctx, call.CallID)
	if err == nil {
		s.logger.Info("duplicate call report ignored", slog.String("callId", call.CallID))
		return nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("checking for existing call: %w", err)
	}

	// Resolve the owning user up front so the stored record carries our
	// internal user id, not just the provider metadata. An unresolvable
	// user still gets its call stored; it just cannot drive generation.
	var user *model.User
	if call.ExternalUserID != "" {
		user, err = s.users.GetByExternalID(ctx, call.ExternalUserID)
		if err != nil {
			s.logger.Warn("call user not found",
				slog.String("callId", call.CallID),
				slog.String("externalUserId", call.ExternalUserID),
			)
			user = nil
		} else if call.UserID == "" {
			call.UserID = user.ID
		}
	}

	if err := s.calls.CreateCallSummary(ctx, call); err != nil {
		// Two deliveries racing past the existence check: the unique
		// constraint catches the loser, which is still a duplicate.
		if errors.Is(err, apperror.ErrConflict) {
			s.logger.Info("duplicate call report ignored", slog.String("callId", call.CallID))
			return nil
		}
		return fmt.Errorf("storing call summary: %w", err)
	}

	s.logger.Info("call summary stored",
		slog.String("callId", call.CallID),
		slog.String("externalUserId", call.ExternalUserID),
	)

	if user == nil {
		s.logger.Warn("call has no resolvable user, skipping generation",
			slog.String("callId", call.CallID))
		return nil
	}

	if _, err := s.generator.GenerateFromCall(ctx, call); err != nil {
		s.logger.Error("essay generation failed",
			slog.String("callId", call.CallID),
			slog.String("externalUserId", call.ExternalUserID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// RecentCalls returns a user's newest call summaries, most recent first.
func (s *CallService) RecentCalls(ctx context.Context, externalID string, limit int) ([]model.CallSummary, error) {
	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultCallLimit
	}
	if limit > MaxCallLimit {
		limit = MaxCallLimit
	}
	return s.calls.GetRecentCallSummaries(ctx, user.ID, limit)
}
