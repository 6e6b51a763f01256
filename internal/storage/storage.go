// Package storage issues presigned URLs, checks object presence and moves
// objects between key namespaces. The Gateway validates keys and bounds
// every call with a timeout; a Backend does the actual work. The MinIO
// backend works with any S3-compatible provider; the S3 backend uses the
// AWS SDK.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/printforge/upload/internal/apperr"
)

var (
	// ErrInvalidKey is returned for keys that are empty, absolute or contain "..".
	ErrInvalidKey = errors.New("storage: invalid key")
	// ErrObjectNotFound is returned when a source object does not exist.
	ErrObjectNotFound = errors.New("storage: object not found")
)

// Backend is an S3-compatible object store bound to one bucket.
type Backend interface {
	// PresignPut returns a URL that accepts exactly one PUT of size bytes
	// with the given Content-Type.
	PresignPut(ctx context.Context, key, contentType string, size int64, ttl time.Duration) (string, error)
	// PresignGet returns a URL for reading key.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Stat reports whether key exists. Absence is (false, nil); any other
	// failure is an error.
	Stat(ctx context.Context, key string) (bool, error)
	// Copy duplicates src to dst within the bucket.
	Copy(ctx context.Context, src, dst string) error
	// Delete removes key.
	Delete(ctx context.Context, key string) error
}

// Gateway is the object storage entry point used by the upload service.
type Gateway struct {
	backend Backend
	timeout time.Duration
	log     *slog.Logger
}

// NewGateway wraps backend. Every backend call is bounded by opTimeout.
func NewGateway(backend Backend, opTimeout time.Duration, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{backend: backend, timeout: opTimeout, log: log}
}

// PresignUpload returns a PUT URL bound to contentType and a Content-Length
// of maxBytes, so storage enforces the negotiated size itself.
func (g *Gateway) PresignUpload(ctx context.Context, key, contentType string, maxBytes int64, ttl time.Duration) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	var url string
	err := g.call(ctx, "presign upload", func(ctx context.Context) error {
		var err error
		url, err = g.backend.PresignPut(ctx, key, contentType, maxBytes, ttl)
		return err
	})
	return url, err
}

// PresignDownload returns a GET URL for key.
func (g *Gateway) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	var url string
	err := g.call(ctx, "presign download", func(ctx context.Context) error {
		var err error
		url, err = g.backend.PresignGet(ctx, key, ttl)
		return err
	})
	return url, err
}

// Exists reports whether an object is stored at key. Transport and auth
// failures are returned as errors, never as false.
func (g *Gateway) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	var ok bool
	err := g.call(ctx, "stat", func(ctx context.Context) error {
		var err error
		ok, err = g.backend.Stat(ctx, key)
		return err
	})
	return ok, err
}

// Move relocates an object by copying then deleting. When the delete fails
// the object is left at both keys and Move still succeeds, so callers must
// not assume the source is gone.
func (g *Gateway) Move(ctx context.Context, fromKey, toKey string) error {
	if err := ValidateKey(fromKey); err != nil {
		return err
	}
	if err := ValidateKey(toKey); err != nil {
		return err
	}

	if err := g.call(ctx, "copy", func(ctx context.Context) error {
		return g.backend.Copy(ctx, fromKey, toKey)
	}); err != nil {
		return err
	}

	if err := g.call(ctx, "delete", func(ctx context.Context) error {
		return g.backend.Delete(ctx, fromKey)
	}); err != nil {
		g.log.WarnContext(ctx, "move: source retained after copy",
			"from", fromKey, "to", toKey, "error", err)
	}
	return nil
}

func (g *Gateway) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	err := fn(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.Transient("storage_timeout", fmt.Errorf("storage %s: %w", op, err))
	}
	return fmt.Errorf("storage %s: %w", op, err)
}
