package repo

import (
	"context"
	"database/sql"
	"strings"

	"ferry/internal/domain"
)

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var intentID, entityID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &intentID, &e.EntityKind, &entityID, &e.Payload); err != nil {
			return nil, err
		}
		e.IntentID = intentID.String
		e.EntityID = entityID.String
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEvents returns the newest events, optionally filtered.
func (r Repo) LatestEvents(ctx context.Context, limit int, intentID, evtType string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if intentID != "" {
		clauses = append(clauses, "intent_id=?")
		args = append(args, intentID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	query := `SELECT id,ts,type,intent_id,entity_kind,entity_id,payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// LatestEventID returns the id of the newest event, or 0 when the log
// is empty.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}

// EventsAfter returns events with id greater than cursor, oldest first.
// The webhook dispatcher tails the log with this.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	query := `SELECT id,ts,type,intent_id,entity_kind,entity_id,payload_json FROM events WHERE id>? ORDER BY id`
	args := []any{cursor}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}
