package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/fredhq/companion/internal/apperror"
	"github.com/fredhq/companion/internal/model"
	"github.com/fredhq/companion/internal/repository"
)

const tidbitColumns = `id, user_id, type, content, relevance_score, created_at, last_used_at`

// CreateTidbits bulk-inserts a batch of tidbits for one user.
// The batch is atomic: an unknown user or a failed insert rolls the whole
// thing back; no partial batch ever lands.
func (db *DB) CreateTidbits(ctx context.Context, userID string, items []repository.NewTidbit) ([]model.Tidbit, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	tidbits, err := createTidbitsTx(ctx, tx, userID, items)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing tidbits: %w", err)
	}
	return tidbits, nil
}

func createTidbitsTx(ctx context.Context, tx *sql.Tx, userID string, items []repository.NewTidbit) ([]model.Tidbit, error) {
	exists, err := userExistsTx(tx, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	if !exists {
		return nil, apperror.NotFound("user", userID)
	}

	now := time.Now()
	tidbits := make([]model.Tidbit, 0, len(items))
	for _, item := range items {
		t := model.Tidbit{
			ID:             xid.New().String(),
			UserID:         userID,
			Type:           item.Type,
			Content:        item.Content,
			RelevanceScore: item.RelevanceScore,
			CreatedAt:      now,
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tidbits (id, user_id, type, content, relevance_score, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, t.UserID, string(t.Type), t.Content, t.RelevanceScore, t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: inserting tidbit: %w", err)
		}
		tidbits = append(tidbits, t)
	}

	return tidbits, nil
}

// GetTopRelevant returns a user's tidbits ordered by relevance score
// descending. Ties break by creation order, oldest first; created_at then
// id, and xids sort by creation time, so the order is stable across calls.
func (db *DB) GetTopRelevant(ctx context.Context, userID string, limit int) ([]model.Tidbit, error) {
	if limit <= 0 {
		limit = 4
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+tidbitColumns+` FROM tidbits
		 WHERE user_id = ?
		 ORDER BY relevance_score DESC, created_at ASC, id ASC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing top tidbits: %w", err)
	}
	defer rows.Close()

	return collectTidbits(rows)
}

// GetRecent returns a user's newest tidbits, most recent first.
func (db *DB) GetRecent(ctx context.Context, userID string, limit int) ([]model.Tidbit, error) {
	if limit <= 0 {
		limit = 4
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+tidbitColumns+` FROM tidbits
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing recent tidbits: %w", err)
	}
	defer rows.Close()

	return collectTidbits(rows)
}

// TouchRelevance updates a tidbit's score and stamps last_used_at with the
// current time. created_at is never touched. Unknown ids return NotFound;
// the caller decides whether that is worth surfacing.
func (db *DB) TouchRelevance(ctx context.Context, tidbitID string, newScore float64) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE tidbits SET relevance_score = ?, last_used_at = ? WHERE id = ?`,
		newScore, time.Now(), tidbitID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: touching tidbit %s: %w", tidbitID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("tidbit", tidbitID)
	}
	return nil
}

// AssociateTidbits replaces the essay's association set: delete everything,
// then insert one row per tidbit id with its input index as position.
//
// The delete and the inserts share one transaction, so a reader can never
// observe the window between "old set gone" and "new set written". Passing
// an empty list is the sanctioned way to clear an essay's associations.
func (db *DB) AssociateTidbits(ctx context.Context, essayID string, tidbitIDs []string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := associateTidbitsTx(ctx, tx, essayID, tidbitIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing associations: %w", err)
	}
	return nil
}

func associateTidbitsTx(ctx context.Context, tx *sql.Tx, essayID string, tidbitIDs []string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM essay_tidbits WHERE essay_id = ?`, essayID,
	); err != nil {
		return fmt.Errorf("sqlite: clearing essay associations: %w", err)
	}

	for position, tidbitID := range tidbitIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO essay_tidbits (essay_id, tidbit_id, position) VALUES (?, ?, ?)`,
			essayID, tidbitID, position,
		); err != nil {
			return fmt.Errorf("sqlite: inserting essay association: %w", err)
		}
	}
	return nil
}

// GetTidbitsForEssay returns the tidbits attached to an essay version, in
// association order.
func (db *DB) GetTidbitsForEssay(ctx context.Context, essayID string) ([]model.Tidbit, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT t.id, t.user_id, t.type, t.content, t.relevance_score, t.created_at, t.last_used_at
		 FROM essay_tidbits et
		 JOIN tidbits t ON t.id = et.tidbit_id
		 WHERE et.essay_id = ?
		 ORDER BY et.position ASC`,
		essayID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing essay tidbits: %w", err)
	}
	defer rows.Close()

	return collectTidbits(rows)
}

func collectTidbits(rows *sql.Rows) ([]model.Tidbit, error) {
	tidbits := []model.Tidbit{}
	for rows.Next() {
		var (
			t          model.Tidbit
			tidbitType string
			lastUsedAt sql.NullTime
		)
		if err := rows.Scan(
			&t.ID, &t.UserID, &tidbitType, &t.Content,
			&t.RelevanceScore, &t.CreatedAt, &lastUsedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tidbit row: %w", err)
		}
		t.Type = model.TidbitType(tidbitType)
		if lastUsedAt.Valid {
			at := lastUsedAt.Time
			t.LastUsedAt = &at
		}
		tidbits = append(tidbits, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tidbit rows: %w", err)
	}
	return tidbits, nil
}

// CommitGeneration writes one generation run's full output (the essay
// version, its tidbits, and their ordered associations) inside a single
// transaction. A failure at any step rolls back every step, so an essay can
// never land without its tidbits or vice versa.
func (db *DB) CommitGeneration(ctx context.Context, userID string, sections []model.Section, items []repository.NewTidbit) (*model.EssayVersion, []model.Tidbit, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	version, err := createVersionTx(ctx, tx, userID, sections)
	if err != nil {
		return nil, nil, err
	}

	tidbits, err := createTidbitsTx(ctx, tx, userID, items)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]string, len(tidbits))
	for i, t := range tidbits {
		ids[i] = t.ID
	}
	if err := associateTidbitsTx(ctx, tx, version.ID, ids); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("sqlite: committing generation: %w", err)
	}
	return version, tidbits, nil
}
