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
)

const callColumns = `id, call_id, user_id, external_user_id, summary, transcript,
	messages, ended_reason, recording_url, assistant_id, created_at`

// CreateCallSummary stores an end-of-call report. The UNIQUE index on
// call_id turns a duplicate delivery into a Conflict, which the webhook
// handler treats as "already processed".
func (db *DB) CreateCallSummary(ctx context.Context, call *model.CallSummary) error {
	call.ID = xid.New().String()
	call.CreatedAt = time.Now()

	messages, err := json.Marshal(call.Messages)
	if err != nil {
		return fmt.Errorf("sqlite: encoding call messages: %w", err)
	}
	if call.Messages == nil {
		messages = []byte("[]")
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO call_summaries
			(id, call_id, user_id, external_user_id, summary, transcript,
			 messages, ended_reason, recording_url, assistant_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.ID,
		call.CallID,
		call.UserID,
		call.ExternalUserID,
		call.Summary,
		call.Transcript,
		string(messages),
		call.EndedReason,
		call.RecordingURL,
		call.AssistantID,
		call.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("call summary", call.CallID)
		}
		return fmt.Errorf("sqlite: creating call summary: %w", err)
	}
	return nil
}

// GetCallSummaryByCallID looks up a stored call by the provider's call id.
func (db *DB) GetCallSummaryByCallID(ctx context.Context, callID string) (*model.CallSummary, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+callColumns+` FROM call_summaries WHERE call_id = ?`,
		callID,
	)
	call, err := scanCallSummary(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("call summary", callID)
		}
		return nil, fmt.Errorf("sqlite: getting call summary %s: %w", callID, err)
	}
	return call, nil
}

// GetRecentCallSummaries returns a user's newest calls, most recent first.
func (db *DB) GetRecentCallSummaries(ctx context.Context, userID string, limit int) ([]model.CallSummary, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+callColumns+` FROM call_summaries
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing call summaries: %w", err)
	}
	defer rows.Close()

	calls := []model.CallSummary{}
	for rows.Next() {
		call, err := scanCallSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning call summary: %w", err)
		}
		calls = append(calls, *call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating call summaries: %w", err)
	}
	return calls, nil
}

func scanCallSummary(row rowScanner) (*model.CallSummary, error) {
	var (
		call     model.CallSummary
		messages string
	)
	err := row.Scan(
		&call.ID,
		&call.CallID,
		&call.UserID,
		&call.ExternalUserID,
		&call.Summary,
		&call.Transcript,
		&messages,
		&call.EndedReason,
		&call.RecordingURL,
		&call.AssistantID,
		&call.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if messages != "" && messages != "[]" {
		if err := json.Unmarshal([]byte(messages), &call.Messages); err != nil {
			return nil, fmt.Errorf("decoding call messages: %w", err)
		}
	}
	return &call, nil
}
