package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/fredhq/companion/internal/apperror"
	"github.com/fredhq/companion/internal/model"
	"github.com/fredhq/companion/internal/repository"
)

// Compile-time interface checks; a missing method fails the build here
// instead of at some distant call site.
var (
	_ repository.UserRepository   = (*DB)(nil)
	_ repository.EssayRepository  = (*DB)(nil)
	_ repository.TidbitRepository = (*DB)(nil)
	_ repository.CallRepository   = (*DB)(nil)
	_ repository.GenerationStore  = (*DB)(nil)
)

const userColumns = `id, external_id, email, first_name, last_name, image_url,
	created_at, updated_at, last_sign_in_at, is_active, metadata`

// Create inserts a new user. The external ID comes from the auth provider;
// our own xid becomes the primary key everything else references.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.IsActive = true

	metadata, err := marshalMetadata(user.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: encoding user metadata: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, external_id, email, first_name, last_name,
			image_url, created_at, updated_at, is_active, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		user.ID,
		user.ExternalID,
		user.Email,
		user.FirstName,
		user.LastName,
		user.ImageURL,
		user.CreatedAt,
		user.UpdatedAt,
		metadata,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.ExternalID)
		}
		return fmt.Errorf("sqlite: creating user: %w", err)
	}

	return nil
}

// GetByExternalID looks a user up by the auth provider's ID.
func (db *DB) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_id = ?`,
		externalID,
	)

	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", externalID)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", externalID, err)
	}
	return user, nil
}

// Update applies a profile update from the auth provider and returns the
// refreshed row. A non-nil Metadata replaces the stored payload wholesale.
func (db *DB) Update(ctx context.Context, externalID string, upd repository.UserUpdate) (*model.User, error) {
	metadata, err := marshalMetadata(upd.Metadata)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encoding user metadata: %w", err)
	}

	query := `UPDATE users
		 SET email = ?, first_name = ?, last_name = ?, image_url = ?, updated_at = ?
		 WHERE external_id = ?`
	args := []any{upd.Email, upd.FirstName, upd.LastName, upd.ImageURL, time.Now(), externalID}
	if upd.Metadata != nil {
		query = `UPDATE users
			 SET email = ?, first_name = ?, last_name = ?, image_url = ?, metadata = ?, updated_at = ?
			 WHERE external_id = ?`
		args = []any{upd.Email, upd.FirstName, upd.LastName, upd.ImageURL, metadata, time.Now(), externalID}
	}

	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating user %s: %w", externalID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return nil, apperror.NotFound("user", externalID)
	}

	return db.GetByExternalID(ctx, externalID)
}

// Deactivate soft-deletes a user. The row stays so essays, tidbits, and call
// summaries keep their referential integrity; read paths simply stop
// resolving the account.
func (db *DB) Deactivate(ctx context.Context, externalID string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET is_active = 0, updated_at = ? WHERE external_id = ?`,
		time.Now(), externalID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deactivating user %s: %w", externalID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("user", externalID)
	}
	return nil
}

// TouchLastSignIn records a session-created event from the auth provider.
func (db *DB) TouchLastSignIn(ctx context.Context, externalID string) error {
	now := time.Now()
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET last_sign_in_at = ?, updated_at = ? WHERE external_id = ?`,
		now, now, externalID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: touching last sign-in for %s: %w", externalID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("user", externalID)
	}
	return nil
}

// rowScanner matches both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		user         model.User
		lastSignInAt sql.NullTime
		metadata     string
	)
	err := row.Scan(
		&user.ID,
		&user.ExternalID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.ImageURL,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastSignInAt,
		&user.IsActive,
		&metadata,
	)
	if err != nil {
		return nil, err
	}
	if lastSignInAt.Valid {
		t := lastSignInAt.Time
		user.LastSignInAt = &t
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &user.Metadata); err != nil {
			return nil, fmt.Errorf("decoding user metadata: %w", err)
		}
	}
	return &user, nil
}

func marshalMetadata(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
