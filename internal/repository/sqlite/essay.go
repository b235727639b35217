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
	"github.com/fredhq/companion/internal/textdiff"
)

const essayColumns = `id, user_id, version, sections, previous_version_id, delta, created_at`

// CreateVersion appends a new version to the user's essay chain.
//
// The latest-version read, the delta computation, and the insert all happen
// inside one transaction. The version number is latest+1 (or 1 for the first
// write), and the predecessor pointer is set exactly once, here, to the row
// that was latest at read time.
//
// TWO WRITERS, ONE USER:
// Callers are expected to serialize generation per user, but if two
// CreateVersion calls for the same user do race, the UNIQUE(user_id, version)
// index makes exactly one of them lose with a Conflict error instead of
// forking the chain.
func (db *DB) CreateVersion(ctx context.Context, userID string, sections []model.Section) (*model.EssayVersion, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	version, err := createVersionTx(ctx, tx, userID, sections)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing version: %w", err)
	}
	return version, nil
}

// createVersionTx is the transactional core of CreateVersion, shared with
// CommitGeneration so the orchestrator can bundle it with tidbit writes.
func createVersionTx(ctx context.Context, tx *sql.Tx, userID string, sections []model.Section) (*model.EssayVersion, error) {
	exists, err := userExistsTx(tx, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	if !exists {
		return nil, apperror.NotFound("user", userID)
	}

	// Resolve the current chain head.
	var (
		prevID       string
		prevVersion  int
		prevSections string
		hasPrev      bool
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, version, sections FROM essay_versions
		 WHERE user_id = ? ORDER BY version DESC LIMIT 1`,
		userID,
	).Scan(&prevID, &prevVersion, &prevSections)
	switch err {
	case nil:
		hasPrev = true
	case sql.ErrNoRows:
		// First version for this user; no predecessor, no delta.
	default:
		return nil, fmt.Errorf("sqlite: resolving latest version: %w", err)
	}

	version := &model.EssayVersion{
		ID:        xid.New().String(),
		UserID:    userID,
		Version:   prevVersion + 1, // 1 when no predecessor
		Sections:  sections,
		CreatedAt: time.Now(),
	}

	if hasPrev {
		var old []model.Section
		if err := json.Unmarshal([]byte(prevSections), &old); err != nil {
			return nil, fmt.Errorf("sqlite: decoding previous sections: %w", err)
		}
		id := prevID
		version.PreviousVersionID = &id
		version.Delta = computeDelta(old, sections)
	}

	sectionsJSON, err := json.Marshal(sections)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encoding sections: %w", err)
	}
	var deltaJSON any // nil → SQL NULL for the first version
	if version.Delta != nil {
		b, err := json.Marshal(version.Delta)
		if err != nil {
			return nil, fmt.Errorf("sqlite: encoding delta: %w", err)
		}
		deltaJSON = string(b)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO essay_versions
			(id, user_id, version, sections, previous_version_id, delta, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		version.ID,
		version.UserID,
		version.Version,
		string(sectionsJSON),
		version.PreviousVersionID,
		deltaJSON,
		version.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// A concurrent writer claimed this version number first.
			return nil, apperror.Conflict("essay version", userID)
		}
		return nil, fmt.Errorf("sqlite: inserting essay version: %w", err)
	}

	return version, nil
}

// computeDelta diffs two section lists.
//
// Sections pair up across versions by exact heading equality. A heading with
// no counterpart in the old list puts its full content in Added; one with no
// counterpart in the new list puts its full content in Removed. A renamed
// heading is therefore indistinguishable from a remove+add pair. Matched
// sections are diffed at character level; any that changed record a
// whole-content (before, after) pair in Modified; the character fragments
// themselves only serve change detection and stay out of Added/Removed,
// which hold whole sections exclusively.
//
// The lists are initialized empty (not nil) so an unchanged rewrite still
// stores a delta (with empty lists) rather than none at all. Only the
// first version of a chain has no delta.
func computeDelta(old, new []model.Section) *model.Delta {
	delta := &model.Delta{
		Added:    []string{},
		Removed:  []string{},
		Modified: []model.Change{},
	}

	oldByHeading := make(map[string]model.Section, len(old))
	for _, s := range old {
		oldByHeading[s.Heading] = s
	}

	for _, section := range new {
		prev, ok := oldByHeading[section.Heading]
		if !ok {
			delta.Added = append(delta.Added, section.Content)
			continue
		}

		spans := textdiff.Diff(prev.Content, section.Content)
		if _, _, changed := textdiff.Accumulate(spans); changed {
			delta.Modified = append(delta.Modified, model.Change{
				Before: prev.Content,
				After:  section.Content,
			})
		}
	}

	newHeadings := make(map[string]struct{}, len(new))
	for _, s := range new {
		newHeadings[s.Heading] = struct{}{}
	}
	for _, s := range old {
		if _, ok := newHeadings[s.Heading]; !ok {
			delta.Removed = append(delta.Removed, s.Content)
		}
	}

	return delta
}

// GetRecentVersions returns up to limit versions, most recent first.
// Unknown users and empty chains both come back as an empty slice; read
// paths treat "nothing yet" and "nobody" the same.
func (db *DB) GetRecentVersions(ctx context.Context, userID string, limit int) ([]model.EssayVersion, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+essayColumns+` FROM essay_versions
		 WHERE user_id = ? ORDER BY version DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing essay versions: %w", err)
	}
	defer rows.Close()

	versions := make([]model.EssayVersion, 0, limit)
	for rows.Next() {
		v, err := scanEssayVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning essay version: %w", err)
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating essay versions: %w", err)
	}

	return versions, nil
}

// GetVersionByID retrieves a single essay version.
func (db *DB) GetVersionByID(ctx context.Context, id string) (*model.EssayVersion, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+essayColumns+` FROM essay_versions WHERE id = ?`, id,
	)
	v, err := scanEssayVersion(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("essay version", id)
		}
		return nil, fmt.Errorf("sqlite: getting essay version %s: %w", id, err)
	}
	return v, nil
}

// GetVersionByNumber retrieves one version of a user's chain by its number.
func (db *DB) GetVersionByNumber(ctx context.Context, userID string, versionNum int) (*model.EssayVersion, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+essayColumns+` FROM essay_versions
		 WHERE user_id = ? AND version = ?`,
		userID, versionNum,
	)
	v, err := scanEssayVersion(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("essay version", fmt.Sprintf("%s/v%d", userID, versionNum))
		}
		return nil, fmt.Errorf("sqlite: getting essay version %d for %s: %w", versionNum, userID, err)
	}
	return v, nil
}

func scanEssayVersion(row rowScanner) (*model.EssayVersion, error) {
	var (
		v        model.EssayVersion
		sections string
		prevID   sql.NullString
		delta    sql.NullString
	)
	err := row.Scan(&v.ID, &v.UserID, &v.Version, &sections, &prevID, &delta, &v.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(sections), &v.Sections); err != nil {
		return nil, fmt.Errorf("decoding sections: %w", err)
	}
	if prevID.Valid {
		id := prevID.String
		v.PreviousVersionID = &id
	}
	if delta.Valid {
		v.Delta = &model.Delta{}
		if err := json.Unmarshal([]byte(delta.String), v.Delta); err != nil {
			return nil, fmt.Errorf("decoding delta: %w", err)
		}
	}
	return &v, nil
}
