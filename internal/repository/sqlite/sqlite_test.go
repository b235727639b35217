package sqlite

import (
	"context"
	"testing"

	"github.com/fredhq/companion/internal/model"
)

// newTestDB opens a fresh in-memory database per test. t.Cleanup closes it
// when the test (or subtest) finishes.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser provisions a user the way the identity webhook would.
func createTestUser(t *testing.T, db *DB, externalID string) *model.User {
	t.Helper()
	user := &model.User{
		ExternalID: externalID,
		Email:      externalID + "@example.com",
		FirstName:  "Test",
	}
	if err := db.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}
