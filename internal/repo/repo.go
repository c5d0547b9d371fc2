package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Repo is the durable store for locations, intents, transfer jobs,
// review items and events. All mutations are single-record updates.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func ptrFromNull(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func int64PtrFromNull(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func marshalStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal string list: %w", err)
	}
	return string(data), nil
}

func unmarshalStrings(payload sql.NullString) ([]string, error) {
	if !payload.Valid || payload.String == "" {
		return nil, nil
	}
	var v []string
	if err := json.Unmarshal([]byte(payload.String), &v); err != nil {
		return nil, fmt.Errorf("unmarshal string list: %w", err)
	}
	return v, nil
}

// execer lets methods run against either the pool or an open transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r Repo) exec(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.DB
}
