package goals

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Goal is one stored waypoint.
type Goal struct {
	ID        int64
	Latitude  float64
	Longitude float64
	CreatedAt time.Time
}

type Repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Append(ctx context.Context, lat, lon float64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO goals(latitude, longitude, created_at) VALUES (?, ?, ?)
	`, lat, lon, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("append goal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append goal id: %w", err)
	}
	return id, nil
}

func (r *Repo) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete goal %d: %w", id, err)
	}
	return nil
}

func (r *Repo) List(ctx context.Context) ([]Goal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, latitude, longitude, created_at FROM goals ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Goal
	for rows.Next() {
		var g Goal
		var createdAt int64
		if err := rows.Scan(&g.ID, &g.Latitude, &g.Longitude, &createdAt); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		g.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goals: %w", err)
	}
	return out, nil
}
