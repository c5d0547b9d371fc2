package repo

import (
	"context"
	"database/sql"

	"ferry/internal/domain"
)

const locationCols = `id,name,kind,path,label,available,created_at`

func scanLocation(scan func(dest ...any) error) (domain.Location, error) {
	var l domain.Location
	var label sql.NullString
	var available int
	err := scan(&l.ID, &l.Name, &l.Kind, &l.Path, &label, &available, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	l.Label = ptrFromNull(label)
	l.Available = available != 0
	return l, nil
}

func (r Repo) InsertLocation(ctx context.Context, l domain.Location) error {
	available := 0
	if l.Available {
		available = 1
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO locations(`+locationCols+`) VALUES (?,?,?,?,?,?,?)`,
		l.ID, l.Name, string(l.Kind), l.Path, nullableStringPtr(l.Label), available, l.CreatedAt)
	return err
}

func (r Repo) GetLocation(ctx context.Context, id string) (domain.Location, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+locationCols+` FROM locations WHERE id=?`, id)
	return scanLocation(row.Scan)
}

func (r Repo) ListLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+locationCols+` FROM locations ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Location
	for rows.Next() {
		l, err := scanLocation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) UpdateLocationAvailable(ctx context.Context, id string, available bool) error {
	v := 0
	if available {
		v = 1
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE locations SET available=? WHERE id=?`, v, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
