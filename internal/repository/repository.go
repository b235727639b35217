// Package repository defines the storage interfaces the service layer
// depends on. The concrete implementation lives in repository/sqlite;
// services are written against these interfaces so tests can inject
// in-memory fakes.
package repository

import (
	"context"

	"github.com/fredhq/companion/internal/model"
)

// UserUpdate carries the mutable profile fields for an upsert-style update.
// Metadata, when non-nil, replaces the stored metadata wholesale; the auth
// provider always sends its complete payload.
type UserUpdate struct {
	Email     string
	FirstName string
	LastName  string
	ImageURL  string
	Metadata  map[string]any
}

// UserRepository manages user accounts keyed by the auth provider's ID.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByExternalID(ctx context.Context, externalID string) (*model.User, error)
	Update(ctx context.Context, externalID string, upd UserUpdate) (*model.User, error)
	// Deactivate soft-deletes: the row stays, IsActive flips to false.
	Deactivate(ctx context.Context, externalID string) error
	TouchLastSignIn(ctx context.Context, externalID string) error
}

// EssayRepository manages the append-only essay version chain.
type EssayRepository interface {
	// CreateVersion appends a new version to the user's chain. It resolves
	// the current latest version, assigns latest+1 (or 1), computes the
	// delta against the predecessor, and persists everything in one atomic
	// write. Unknown users fail with NotFound and leave nothing behind.
	CreateVersion(ctx context.Context, userID string, sections []model.Section) (*model.EssayVersion, error)
	// GetRecentVersions returns up to limit versions, most recent first.
	// Unknown users and users without versions both yield an empty slice.
	GetRecentVersions(ctx context.Context, userID string, limit int) ([]model.EssayVersion, error)
	GetVersionByID(ctx context.Context, id string) (*model.EssayVersion, error)
	GetVersionByNumber(ctx context.Context, userID string, version int) (*model.EssayVersion, error)
}

// NewTidbit is the input shape for bulk tidbit creation.
type NewTidbit struct {
	Type           model.TidbitType
	Content        string
	RelevanceScore float64
}

// TidbitRepository manages extracted insights and their essay associations.
type TidbitRepository interface {
	// CreateTidbits bulk-inserts atomically; unknown users fail with
	// NotFound and no partial batch is left behind.
	CreateTidbits(ctx context.Context, userID string, items []NewTidbit) ([]model.Tidbit, error)
	// GetTopRelevant orders by relevance score descending; ties break by
	// creation order, oldest first (stable; xids sort by creation time).
	GetTopRelevant(ctx context.Context, userID string, limit int) ([]model.Tidbit, error)
	GetRecent(ctx context.Context, userID string, limit int) ([]model.Tidbit, error)
	// TouchRelevance updates the score and stamps lastUsedAt with the
	// current time. CreatedAt is untouched. Unknown ids return NotFound.
	TouchRelevance(ctx context.Context, tidbitID string, newScore float64) error
	// AssociateTidbits replaces the essay's whole association set in one
	// transaction: delete all, then insert one row per id with its index as
	// position. An empty list leaves zero rows.
	AssociateTidbits(ctx context.Context, essayID string, tidbitIDs []string) error
	GetTidbitsForEssay(ctx context.Context, essayID string) ([]model.Tidbit, error)
}

// CallRepository manages voice-call summaries.
type CallRepository interface {
	CreateCallSummary(ctx context.Context, call *model.CallSummary) error
	// GetCallSummaryByCallID looks up by the provider's call id; the
	// duplicate-delivery check. Returns NotFound when no record exists.
	GetCallSummaryByCallID(ctx context.Context, callID string) (*model.CallSummary, error)
	GetRecentCallSummaries(ctx context.Context, userID string, limit int) ([]model.CallSummary, error)
}

// GenerationStore commits the full output of one generation run (the essay
// version, its tidbits, and their ordered associations) in a single
// transaction, so a mid-sequence failure never leaves an essay without its
// tidbits.
type GenerationStore interface {
	CommitGeneration(ctx context.Context, userID string, sections []model.Section, tidbits []NewTidbit) (*model.EssayVersion, []model.Tidbit, error)
}
