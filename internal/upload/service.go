// Package upload manages upload batches: creating pending records under a
// verified ticket, handing out presigned URLs, confirming stored objects
// against quota and moving anonymous uploads to a user.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/printforge/upload/internal/apperr"
	"github.com/printforge/upload/internal/identity"
	"github.com/printforge/upload/internal/storage"
	"github.com/printforge/upload/internal/ticket"
)

// DefaultMimeType is stored when a file spec has no content type.
const DefaultMimeType = "application/octet-stream"

const existsConcurrency = 8

var (
	// ErrLimitExceeded is wrapped when a file is larger than the ticket or
	// service ceiling allows.
	ErrLimitExceeded = errors.New("upload: file exceeds size limit")
	// ErrObjectMissing is wrapped when confirm finds no object at a file's key.
	ErrObjectMissing = errors.New("upload: object missing from storage")
	// ErrPendingUploads is wrapped when a transfer is refused because the
	// session still has unconfirmed uploads.
	ErrPendingUploads = errors.New("upload: session has pending uploads")
)

// FileSpec describes one file a caller intends to upload.
type FileSpec struct {
	Filename    string `json:"filename"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type"`
}

// SignedURL is a presigned PUT for one file.
type SignedURL struct {
	FileID    string    `json:"file_id"`
	Filename  string    `json:"filename"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ConfirmedFile is a file of a completed upload.
type ConfirmedFile struct {
	FileID     string `json:"file_id"`
	Filename   string `json:"filename"`
	SizeBytes  int64  `json:"size_bytes"`
	StorageKey string `json:"storage_key"`
}

// Confirmation is the result of a confirm.
type Confirmation struct {
	UploadID string          `json:"upload_id"`
	Status   Status          `json:"status"`
	Files    []ConfirmedFile `json:"files"`

	owner   identity.Identity
	debited int64
}

// ReadURL is a presigned GET for a stored file.
type ReadURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store persists uploads and files. *Repository implements it.
type Store interface {
	CreateUpload(ctx context.Context, u *Upload, files []File) error
	GetUpload(ctx context.Context, id string) (*Upload, error)
	ListSessionUploads(ctx context.Context, sessionID string) ([]Upload, error)
	ListFiles(ctx context.Context, uploadID string) ([]File, error)
	GetFile(ctx context.Context, id string) (*File, error)
	MarkCompleted(ctx context.Context, id string, at time.Time) (bool, error)
	UpdateFileKey(ctx context.Context, fileID, key string) error
	RebindToUser(ctx context.Context, uploadID, userID string, at time.Time) error
}

// Ledger is the quota accounting used by the service. *quota.Ledger implements it.
type Ledger interface {
	CheckAdmission(ctx context.Context, id identity.Identity, ip string, requested int64) error
	Commit(ctx context.Context, id identity.Identity, ip string, bytes int64) error
	Rekey(ctx context.Context, sessionID, userID string) error
}

// Objects is the object storage used by the service. *storage.Gateway implements it.
type Objects interface {
	PresignUpload(ctx context.Context, key, contentType string, maxBytes int64, ttl time.Duration) (string, error)
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Move(ctx context.Context, fromKey, toKey string) error
}

// Transactor runs fn atomically. *db.Transactor implements it.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Config holds service limits.
type Config struct {
	PresignTTL time.Duration
	// MaxFileBytes caps any single file regardless of the ticket. Zero disables it.
	MaxFileBytes int64
}

// Service implements the upload lifecycle.
type Service struct {
	store   Store
	tx      Transactor
	ledger  Ledger
	objects Objects
	cfg     Config
	log     *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides how upload and file ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService creates a new upload Service.
func NewService(store Store, tx Transactor, ledger Ledger, objects Objects, cfg Config, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		store:   store,
		tx:      tx,
		ledger:  ledger,
		objects: objects,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init validates files against the ticket, checks quota for their total
// size and records a pending upload with one file row per spec. Nothing is
// written when any check fails.
func (s *Service) Init(ctx context.Context, t *ticket.Ticket, ip string, specs []FileSpec) (*Upload, error) {
	owner := t.Identity()
	if err := owner.Validate(); err != nil {
		return nil, apperr.New(apperr.KindValidation, "invalid_identity", "", err)
	}
	if len(specs) == 0 {
		return nil, apperr.Validation("no_files", "files", "at least one file is required")
	}

	var total int64
	for i, spec := range specs {
		name := strings.TrimSpace(spec.Filename)
		if name == "" {
			return nil, apperr.Validation("invalid_filename", fmt.Sprintf("files[%d].filename", i), "filename is required")
		}
		if spec.SizeBytes <= 0 {
			return nil, apperr.Validation("invalid_size", name, "size_bytes must be positive")
		}
		if spec.SizeBytes > t.MaxSizeBytes {
			return nil, apperr.New(apperr.KindValidation, "limit_exceeded", name,
				fmt.Errorf("%w: %d > ticket limit %d", ErrLimitExceeded, spec.SizeBytes, t.MaxSizeBytes))
		}
		if s.cfg.MaxFileBytes > 0 && spec.SizeBytes > s.cfg.MaxFileBytes {
			return nil, apperr.New(apperr.KindValidation, "limit_exceeded", name,
				fmt.Errorf("%w: %d > service limit %d", ErrLimitExceeded, spec.SizeBytes, s.cfg.MaxFileBytes))
		}
		if total > math.MaxInt64-spec.SizeBytes {
			return nil, apperr.New(apperr.KindValidation, "limit_exceeded", name,
				fmt.Errorf("%w: total size overflows", ErrLimitExceeded))
		}
		total += spec.SizeBytes
	}

	if err := s.ledger.CheckAdmission(ctx, owner, ip, total); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	u := &Upload{
		ID:        s.newID(),
		IPAddress: ip,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if owner.Anonymous() {
		u.SessionID = &owner.SessionID
	} else {
		u.UserID = &owner.UserID
	}

	files := make([]File, 0, len(specs))
	for _, spec := range specs {
		fileID := s.newID()
		name := strings.TrimSpace(spec.Filename)
		mime := strings.TrimSpace(spec.ContentType)
		if mime == "" {
			mime = DefaultMimeType
		}
		files = append(files, File{
			ID:         fileID,
			UploadID:   u.ID,
			Filename:   name,
			StorageKey: objectKey(owner, fileID, storage.Ext(name)),
			SizeBytes:  spec.SizeBytes,
			MimeType:   mime,
			CreatedAt:  now,
		})
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.store.CreateUpload(ctx, u, files)
	})
	if err != nil {
		return nil, fmt.Errorf("create upload: %w", err)
	}
	u.Files = files

	s.log.InfoContext(ctx, "upload initialised",
		"upload_id", u.ID, "owner", owner.String(), "files", len(files), "bytes", total)
	return u, nil
}

func objectKey(owner identity.Identity, fileID, ext string) string {
	if owner.Anonymous() {
		return storage.AnonKey(owner.SessionID, fileID, ext)
	}
	return storage.UserKey(owner.UserID, fileID, ext)
}

// SignedURLs returns one presigned PUT per file of the upload, each bound
// to the file's content type and declared size.
func (s *Service) SignedURLs(ctx context.Context, uploadID string) ([]SignedURL, error) {
	u, err := s.getUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListFiles(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	if len(files) == 0 {
		return nil, apperr.NotFound("files_not_found", uploadID)
	}

	expires := s.now().UTC().Add(s.cfg.PresignTTL)
	urls := make([]SignedURL, 0, len(files))
	for _, f := range files {
		url, err := s.objects.PresignUpload(ctx, f.StorageKey, f.MimeType, f.SizeBytes, s.cfg.PresignTTL)
		if err != nil {
			return nil, fmt.Errorf("presign %s: %w", f.Filename, err)
		}
		urls = append(urls, SignedURL{
			FileID:    f.ID,
			Filename:  f.Filename,
			UploadURL: url,
			ExpiresAt: expires,
		})
	}
	return urls, nil
}

// Confirm verifies every file of the upload is in storage, then marks the
// upload completed and debits quota in one transaction. Confirming a
// completed upload returns its files without debiting again. A missing
// object fails the whole confirm and leaves the upload pending.
func (s *Service) Confirm(ctx context.Context, uploadID string) (*Confirmation, error) {
	u, err := s.getUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListFiles(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	if u.Status == StatusCompleted {
		return confirmation(u, files, 0), nil
	}
	if len(files) == 0 {
		return nil, apperr.NotFound("files_not_found", uploadID)
	}

	if err := s.checkObjects(ctx, files); err != nil {
		return nil, err
	}

	var total int64
	for _, f := range files {
		total += f.SizeBytes
	}

	var debited int64
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		changed, err := s.store.MarkCompleted(ctx, u.ID, s.now().UTC())
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		debited = total
		return s.ledger.Commit(ctx, u.Identity(), u.IPAddress, total)
	})
	if err != nil {
		return nil, fmt.Errorf("complete upload: %w", err)
	}

	if debited > 0 {
		s.log.InfoContext(ctx, "upload confirmed",
			"upload_id", u.ID, "owner", u.Identity().String(), "bytes", total)
	}
	return confirmation(u, files, debited), nil
}

func (s *Service) checkObjects(ctx context.Context, files []File) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(existsConcurrency)
	for _, f := range files {
		g.Go(func() error {
			ok, err := s.objects.Exists(ctx, f.StorageKey)
			if err != nil {
				return fmt.Errorf("check %s: %w", f.Filename, err)
			}
			if !ok {
				return apperr.New(apperr.KindStorageInconsistency, "object_missing", f.Filename,
					fmt.Errorf("%w: %s", ErrObjectMissing, f.StorageKey))
			}
			return nil
		})
	}
	return g.Wait()
}

func confirmation(u *Upload, files []File, debited int64) *Confirmation {
	c := &Confirmation{
		UploadID: u.ID,
		Status:   StatusCompleted,
		Files:    make([]ConfirmedFile, 0, len(files)),
		owner:    u.Identity(),
		debited:  debited,
	}
	for _, f := range files {
		c.Files = append(c.Files, ConfirmedFile{
			FileID:     f.ID,
			Filename:   f.Filename,
			SizeBytes:  f.SizeBytes,
			StorageKey: f.StorageKey,
		})
	}
	return c
}

// ReadURL returns a presigned GET for a stored file.
func (s *Service) ReadURL(ctx context.Context, fileID string) (*ReadURL, error) {
	if _, err := uuid.Parse(fileID); err != nil {
		return nil, apperr.NotFound("file_not_found", fileID)
	}
	f, err := s.store.GetFile(ctx, fileID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("file_not_found", fileID)
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	url, err := s.objects.PresignDownload(ctx, f.StorageKey, s.cfg.PresignTTL)
	if err != nil {
		return nil, fmt.Errorf("presign read: %w", err)
	}
	return &ReadURL{URL: url, ExpiresAt: s.now().UTC().Add(s.cfg.PresignTTL)}, nil
}

func (s *Service) getUpload(ctx context.Context, uploadID string) (*Upload, error) {
	if _, err := uuid.Parse(uploadID); err != nil {
		return nil, apperr.NotFound("upload_not_found", uploadID)
	}
	u, err := s.store.GetUpload(ctx, uploadID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("upload_not_found", uploadID)
	}
	if err != nil {
		return nil, fmt.Errorf("get upload: %w", err)
	}
	return u, nil
}
