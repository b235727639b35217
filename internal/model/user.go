// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Identity lives with an external auth provider, so the primary external
// identifier is the provider's user ID (an opaque string like "user_2aB3...").
// We still generate our own internal string ID (xid) for consistency with the
// other models and to avoid tying our primary keys to a third party's
// numbering scheme.
//
// WHY IsActive INSTEAD OF DELETING ROWS?
// When the auth provider reports a deleted account we soft-delete: flip
// IsActive to false and keep the row. Essays, tidbits, and call summaries all
// reference users(id); hard-deleting would either cascade away the user's
// history or orphan it. Deactivated users simply stop resolving on read paths.
//
// Metadata holds the provider's raw payload plus the onboarding questionnaire
// answers (archetype codes). It is schemaless on purpose; the provider owns
// that shape, we just store and interpret the handful of keys we know about.
type User struct {
	ID           string         `json:"id"`
	ExternalID   string         `json:"externalId"` // auth provider's user ID, unique
	Email        string         `json:"email"`      // primary email (may be empty)
	FirstName    string         `json:"firstName"`
	LastName     string         `json:"lastName"`
	ImageURL     string         `json:"imageUrl"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	LastSignInAt *time.Time     `json:"lastSignInAt,omitempty"`
	IsActive     bool           `json:"isActive"`
	Metadata     map[string]any `json:"metadata,omitempty"` // provider payload + onboarding answers
}
