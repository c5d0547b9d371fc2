package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends to the workspace event log. Events are emitted by the
// engine itself (there is no external actor identity to record).
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event. Pass a nil tx to write outside a transaction.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, intentID, entityKind, entityID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	query := `INSERT INTO events(ts,type,intent_id,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`
	args := []any{ts, evtType, nullable(intentID), entityKind, nullable(entityID), string(data)}
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = w.DB.ExecContext(ctx, query, args...)
	}
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
