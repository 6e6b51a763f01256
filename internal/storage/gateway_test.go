package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printforge/upload/internal/apperr"
)

type fakeBackend struct {
	mu        sync.Mutex
	calls     []string
	objects   map[string]bool
	statErr   error
	deleteErr error
	block     bool
}

func newFakeBackend(keys ...string) *fakeBackend {
	b := &fakeBackend{objects: map[string]bool{}}
	for _, k := range keys {
		b.objects[k] = true
	}
	return b
}

func (b *fakeBackend) record(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

func (b *fakeBackend) wait(ctx context.Context) error {
	if !b.block {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (b *fakeBackend) PresignPut(ctx context.Context, key, contentType string, size int64, ttl time.Duration) (string, error) {
	b.record("put:" + key)
	if err := b.wait(ctx); err != nil {
		return "", err
	}
	return "https://store/" + key + "?sig=put", nil
}

func (b *fakeBackend) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	b.record("get:" + key)
	return "https://store/" + key + "?sig=get", nil
}

func (b *fakeBackend) Stat(ctx context.Context, key string) (bool, error) {
	b.record("stat:" + key)
	if err := b.wait(ctx); err != nil {
		return false, err
	}
	if b.statErr != nil {
		return false, b.statErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.objects[key], nil
}

func (b *fakeBackend) Copy(ctx context.Context, src, dst string) error {
	b.record("copy:" + src + ">" + dst)
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.objects[src] {
		return ErrObjectNotFound
	}
	b.objects[dst] = true
	return nil
}

func (b *fakeBackend) Delete(ctx context.Context, key string) error {
	b.record("delete:" + key)
	if b.deleteErr != nil {
		return b.deleteErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func TestGateway_RejectsTraversalBeforeAnyCall(t *testing.T) {
	b := newFakeBackend()
	g := NewGateway(b, time.Second, nil)
	ctx := context.Background()
	bad := "anon/../users/victim/f.stl"

	_, err := g.PresignUpload(ctx, bad, "model/stl", 10, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = g.PresignDownload(ctx, bad, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = g.Exists(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, g.Move(ctx, bad, "users/u/f.stl"), ErrInvalidKey)
	assert.ErrorIs(t, g.Move(ctx, "anon/s/f.stl", bad), ErrInvalidKey)

	assert.Empty(t, b.calls)
}

func TestGateway_Exists(t *testing.T) {
	b := newFakeBackend("anon/s/f.stl")
	g := NewGateway(b, time.Second, nil)

	ok, err := g.Exists(context.Background(), "anon/s/f.stl")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Exists(context.Background(), "anon/s/missing.stl")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGateway_ExistsPropagatesBackendErrors(t *testing.T) {
	b := newFakeBackend("anon/s/f.stl")
	b.statErr = errors.New("403 access denied")
	g := NewGateway(b, time.Second, nil)

	ok, err := g.Exists(context.Background(), "anon/s/f.stl")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestGateway_TimeoutIsTransient(t *testing.T) {
	b := newFakeBackend("anon/s/f.stl")
	b.block = true
	g := NewGateway(b, 10*time.Millisecond, nil)

	_, err := g.Exists(context.Background(), "anon/s/f.stl")
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = g.PresignUpload(context.Background(), "anon/s/f.stl", "model/stl", 1, time.Minute)
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))
}

func TestGateway_MoveCopiesThenDeletes(t *testing.T) {
	b := newFakeBackend("anon/s/f.stl")
	g := NewGateway(b, time.Second, nil)

	require.NoError(t, g.Move(context.Background(), "anon/s/f.stl", "users/u/f.stl"))
	assert.Equal(t, []string{"copy:anon/s/f.stl>users/u/f.stl", "delete:anon/s/f.stl"}, b.calls)
	assert.True(t, b.objects["users/u/f.stl"])
	assert.False(t, b.objects["anon/s/f.stl"])
}

func TestGateway_MoveKeepsSourceWhenDeleteFails(t *testing.T) {
	b := newFakeBackend("anon/s/f.stl")
	b.deleteErr = errors.New("delete refused")
	g := NewGateway(b, time.Second, nil)

	require.NoError(t, g.Move(context.Background(), "anon/s/f.stl", "users/u/f.stl"))
	assert.True(t, b.objects["users/u/f.stl"])
	assert.True(t, b.objects["anon/s/f.stl"])
}

func TestGateway_MoveFailsWhenCopyFails(t *testing.T) {
	b := newFakeBackend()
	g := NewGateway(b, time.Second, nil)

	err := g.Move(context.Background(), "anon/s/gone.stl", "users/u/gone.stl")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.Equal(t, []string{"copy:anon/s/gone.stl>users/u/gone.stl"}, b.calls)
}

func TestGateway_Presign(t *testing.T) {
	b := newFakeBackend()
	g := NewGateway(b, time.Second, nil)

	put, err := g.PresignUpload(context.Background(), "anon/s/f.stl", "model/stl", 500, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://store/anon/s/f.stl?sig=put", put)

	get, err := g.PresignDownload(context.Background(), "anon/s/f.stl", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://store/anon/s/f.stl?sig=get", get)
}
