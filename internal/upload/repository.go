package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/printforge/upload/internal/db"
	"github.com/printforge/upload/internal/identity"
)

// Status is the lifecycle state of an Upload.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Upload is one batch upload attempt, owned by a session or a user.
type Upload struct {
	ID          string     `json:"id"`
	UserID      *string    `json:"user_id,omitempty"`
	SessionID   *string    `json:"session_id,omitempty"`
	IPAddress   string     `json:"ip_address"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Files       []File     `json:"files,omitempty"`
}

// Identity returns the upload's current owner.
func (u *Upload) Identity() identity.Identity {
	var id identity.Identity
	if u.SessionID != nil {
		id.SessionID = *u.SessionID
	}
	if u.UserID != nil {
		id.UserID = *u.UserID
	}
	return id
}

// File is one object belonging to an Upload.
type File struct {
	ID         string    `json:"id"`
	UploadID   string    `json:"upload_id"`
	Filename   string    `json:"filename"`
	StorageKey string    `json:"storage_key"`
	SizeBytes  int64     `json:"size_bytes"`
	MimeType   string    `json:"mime_type"`
	CreatedAt  time.Time `json:"created_at"`
}

var (
	// ErrNotFound is returned when an upload or file does not exist.
	ErrNotFound = errors.New("upload: not found")
	// ErrDuplicateKey is returned when a storage key is already taken.
	ErrDuplicateKey = errors.New("upload: duplicate storage key")
)

// Repository handles upload and file persistence.
type Repository struct {
	pool db.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateUpload inserts u and its files. Callers run it inside a transaction
// so a failing file insert leaves no rows behind.
func (r *Repository) CreateUpload(ctx context.Context, u *Upload, files []File) error {
	q := db.Conn(ctx, r.pool)

	_, err := q.Exec(ctx,
		`INSERT INTO uploads (id, user_id, session_id, ip_address, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		u.ID, u.UserID, u.SessionID, u.IPAddress, string(u.Status), u.CreatedAt,
	)
	if err != nil {
		return db.Wrap("insert upload", err)
	}

	for _, f := range files {
		_, err := q.Exec(ctx,
			`INSERT INTO files (id, upload_id, filename, storage_key, size_bytes, mime_type, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			f.ID, u.ID, f.Filename, f.StorageKey, f.SizeBytes, f.MimeType, f.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert file %s: %w", f.Filename, ErrDuplicateKey)
			}
			return db.Wrap("insert file", err)
		}
	}
	return nil
}

const uploadColumns = `id::text, user_id, session_id, ip_address, status, created_at, updated_at, completed_at`

func scanUpload(row pgx.Row) (*Upload, error) {
	u := &Upload{}
	var status string
	err := row.Scan(&u.ID, &u.UserID, &u.SessionID, &u.IPAddress, &status,
		&u.CreatedAt, &u.UpdatedAt, &u.CompletedAt)
	if err != nil {
		return nil, err
	}
	u.Status = Status(status)
	return u, nil
}

// GetUpload fetches an upload by id.
func (r *Repository) GetUpload(ctx context.Context, id string) (*Upload, error) {
	u, err := scanUpload(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+uploadColumns+` FROM uploads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, db.Wrap("get upload", err)
	}
	return u, nil
}

// ListSessionUploads returns every upload still bound to sessionID, oldest first.
func (r *Repository) ListSessionUploads(ctx context.Context, sessionID string) ([]Upload, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+uploadColumns+` FROM uploads WHERE session_id = $1 ORDER BY created_at, id`,
		sessionID)
	if err != nil {
		return nil, db.Wrap("list session uploads", err)
	}
	defer rows.Close()

	var uploads []Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, db.Wrap("scan upload", err)
		}
		uploads = append(uploads, *u)
	}
	return uploads, db.Wrap("iterate uploads", rows.Err())
}

const fileColumns = `id::text, upload_id::text, filename, storage_key, size_bytes, mime_type, created_at`

func scanFile(row pgx.Row) (*File, error) {
	f := &File{}
	err := row.Scan(&f.ID, &f.UploadID, &f.Filename, &f.StorageKey, &f.SizeBytes, &f.MimeType, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ListFiles returns the files of an upload in creation order.
func (r *Repository) ListFiles(ctx context.Context, uploadID string) ([]File, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+fileColumns+` FROM files WHERE upload_id = $1 ORDER BY created_at, id`,
		uploadID)
	if err != nil {
		return nil, db.Wrap("list files", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, db.Wrap("scan file", err)
		}
		files = append(files, *f)
	}
	return files, db.Wrap("iterate files", rows.Err())
}

// GetFile fetches a file by id.
func (r *Repository) GetFile(ctx context.Context, id string) (*File, error) {
	f, err := scanFile(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, db.Wrap("get file", err)
	}
	return f, nil
}

// MarkCompleted moves a pending upload to completed. It reports false when
// the upload was not pending, so concurrent confirms flip it only once.
func (r *Repository) MarkCompleted(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE uploads SET status = 'completed', completed_at = $2, updated_at = $2
		 WHERE id = $1 AND status = 'pending'`,
		id, at)
	if err != nil {
		return false, db.Wrap("complete upload", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateFileKey rewrites a file's storage key.
func (r *Repository) UpdateFileKey(ctx context.Context, fileID, key string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE files SET storage_key = $2 WHERE id = $1`, fileID, key)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update file key: %w", ErrDuplicateKey)
		}
		return db.Wrap("update file key", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RebindToUser moves an upload from its session to userID.
func (r *Repository) RebindToUser(ctx context.Context, uploadID, userID string, at time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE uploads SET user_id = $2, session_id = NULL, updated_at = $3
		 WHERE id = $1 AND session_id IS NOT NULL`,
		uploadID, userID, at)
	if err != nil {
		return db.Wrap("rebind upload", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation checks whether an error is a PostgreSQL unique_violation (code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
