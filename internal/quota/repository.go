package quota

import (
	"context"
	"time"

	"github.com/printforge/upload/internal/db"
)

// Repository is the PostgreSQL Store.
type Repository struct {
	pool db.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Usage sums bytes_used for the scope over [from, to].
func (r *Repository) Usage(ctx context.Context, scope Scope, scopeID string, from, to time.Time) (int64, error) {
	var used int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COALESCE(SUM(bytes_used), 0)::BIGINT
		 FROM quota_entries
		 WHERE scope = $1 AND scope_id = $2 AND period_start BETWEEN $3 AND $4`,
		string(scope), scopeID, from, to,
	).Scan(&used)
	if err != nil {
		return 0, db.Wrap("quota usage", err)
	}
	return used, nil
}

// RecentUserBytes sums file sizes created since for uploads bound to the user.
func (r *Repository) RecentUserBytes(ctx context.Context, userID string, since time.Time) (int64, error) {
	var used int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COALESCE(SUM(f.size_bytes), 0)::BIGINT
		 FROM files f
		 JOIN uploads u ON u.id = f.upload_id
		 WHERE u.user_id = $1 AND f.created_at > $2`,
		userID, since,
	).Scan(&used)
	if err != nil {
		return 0, db.Wrap("recent user bytes", err)
	}
	return used, nil
}

// Add upserts the entry for day, adding bytes to any existing value.
func (r *Repository) Add(ctx context.Context, scope Scope, scopeID string, day time.Time, bytes int64) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO quota_entries (scope, scope_id, period_start, bytes_used)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (scope, scope_id, period_start)
		 DO UPDATE SET bytes_used = quota_entries.bytes_used + EXCLUDED.bytes_used,
		               updated_at = NOW()`,
		string(scope), scopeID, day, bytes,
	)
	return db.Wrap("add quota", err)
}

// MoveSessionToUser deletes the session's entries and folds them into the
// user's in one statement.
func (r *Repository) MoveSessionToUser(ctx context.Context, sessionID, userID string) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`WITH moved AS (
		     DELETE FROM quota_entries
		     WHERE scope = 'session' AND scope_id = $1
		     RETURNING period_start, bytes_used
		 )
		 INSERT INTO quota_entries (scope, scope_id, period_start, bytes_used)
		 SELECT 'user', $2, period_start, bytes_used FROM moved
		 ON CONFLICT (scope, scope_id, period_start)
		 DO UPDATE SET bytes_used = quota_entries.bytes_used + EXCLUDED.bytes_used,
		               updated_at = NOW()`,
		sessionID, userID,
	)
	if err != nil {
		return 0, db.Wrap("move session quota", err)
	}
	return tag.RowsAffected(), nil
}
