package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/printforge/upload/internal/quota"
	"github.com/printforge/upload/internal/storage"
)

type quotaKey struct {
	scope quota.Scope
	id    string
	day   time.Time
}

// memDB is an in-memory upload and quota store. The transactor snapshots
// and restores it so rolled-back work leaves no trace.
type memDB struct {
	mu      sync.Mutex
	uploads map[string]Upload
	files   map[string]File
	quota   map[quotaKey]int64
	commits int

	failFileInsert bool
}

func newMemDB() *memDB {
	return &memDB{
		uploads: map[string]Upload{},
		files:   map[string]File{},
		quota:   map[quotaKey]int64{},
	}
}

type snapshot struct {
	uploads map[string]Upload
	files   map[string]File
	quota   map[quotaKey]int64
	commits int
}

func (m *memDB) snapshot() snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := snapshot{
		uploads: make(map[string]Upload, len(m.uploads)),
		files:   make(map[string]File, len(m.files)),
		quota:   make(map[quotaKey]int64, len(m.quota)),
		commits: m.commits,
	}
	for k, v := range m.uploads {
		s.uploads[k] = v
	}
	for k, v := range m.files {
		s.files[k] = v
	}
	for k, v := range m.quota {
		s.quota[k] = v
	}
	return s
}

func (m *memDB) restore(s snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads, m.files, m.quota, m.commits = s.uploads, s.files, s.quota, s.commits
}

func (m *memDB) CreateUpload(_ context.Context, u *Upload, files []File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *u
	stored.Files = nil
	m.uploads[u.ID] = stored
	for i, f := range files {
		if m.failFileInsert && i == len(files)-1 {
			return fmt.Errorf("insert file %s: %w", f.Filename, ErrDuplicateKey)
		}
		m.files[f.ID] = f
	}
	return nil
}

func (m *memDB) GetUpload(_ context.Context, id string) (*Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *memDB) ListSessionUploads(_ context.Context, sessionID string) ([]Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Upload
	for _, u := range m.uploads {
		if u.SessionID != nil && *u.SessionID == sessionID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memDB) ListFiles(_ context.Context, uploadID string) ([]File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []File
	for _, f := range m.files {
		if f.UploadID == uploadID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memDB) GetFile(_ context.Context, id string) (*File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

func (m *memDB) MarkCompleted(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[id]
	if !ok || u.Status != StatusPending {
		return false, nil
	}
	u.Status = StatusCompleted
	u.CompletedAt = &at
	u.UpdatedAt = at
	m.uploads[id] = u
	return true, nil
}

func (m *memDB) UpdateFileKey(_ context.Context, fileID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileID]
	if !ok {
		return ErrNotFound
	}
	f.StorageKey = key
	m.files[fileID] = f
	return nil
}

func (m *memDB) RebindToUser(_ context.Context, uploadID, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[uploadID]
	if !ok || u.SessionID == nil {
		return ErrNotFound
	}
	uid := userID
	u.UserID = &uid
	u.SessionID = nil
	u.UpdatedAt = at
	m.uploads[uploadID] = u
	return nil
}

func (m *memDB) Usage(_ context.Context, scope quota.Scope, id string, from, to time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for k, v := range m.quota {
		if k.scope == scope && k.id == id && !k.day.Before(from) && !k.day.After(to) {
			sum += v
		}
	}
	return sum, nil
}

func (m *memDB) RecentUserBytes(_ context.Context, userID string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, f := range m.files {
		u := m.uploads[f.UploadID]
		if u.UserID != nil && *u.UserID == userID && f.CreatedAt.After(since) {
			sum += f.SizeBytes
		}
	}
	return sum, nil
}

func (m *memDB) Add(_ context.Context, scope quota.Scope, id string, day time.Time, bytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quota[quotaKey{scope, id, day}] += bytes
	m.commits++
	return nil
}

func (m *memDB) MoveSessionToUser(_ context.Context, sessionID, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var moved int64
	for k, v := range m.quota {
		if k.scope == quota.ScopeSession && k.id == sessionID {
			m.quota[quotaKey{quota.ScopeUser, userID, k.day}] += v
			delete(m.quota, k)
			moved++
		}
	}
	return moved, nil
}

func (m *memDB) uploadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}

func (m *memDB) fileCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

type memTx struct{ db *memDB }

func (t memTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := t.db.snapshot()
	if err := fn(ctx); err != nil {
		t.db.restore(snap)
		return err
	}
	return nil
}

// memBackend is an object store keyed by object key.
type memBackend struct {
	mu      sync.Mutex
	objects map[string]int64
	calls   []string
	statErr error
	copyErr error
}

func newMemBackend() *memBackend {
	return &memBackend{objects: map[string]int64{}}
}

func (b *memBackend) record(call string) {
	b.mu.Lock()
	b.calls = append(b.calls, call)
	b.mu.Unlock()
}

func (b *memBackend) PresignPut(_ context.Context, key, contentType string, size int64, ttl time.Duration) (string, error) {
	b.record("put " + key)
	return fmt.Sprintf("https://storage.test/%s?type=%s&size=%d&ttl=%s", key, contentType, size, ttl), nil
}

func (b *memBackend) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	b.record("get " + key)
	return fmt.Sprintf("https://storage.test/%s?ttl=%s", key, ttl), nil
}

func (b *memBackend) Stat(_ context.Context, key string) (bool, error) {
	b.record("stat " + key)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.statErr != nil {
		return false, b.statErr
	}
	_, ok := b.objects[key]
	return ok, nil
}

func (b *memBackend) Copy(_ context.Context, src, dst string) error {
	b.record("copy " + src)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.copyErr != nil {
		return b.copyErr
	}
	size, ok := b.objects[src]
	if !ok {
		return storage.ErrObjectNotFound
	}
	b.objects[dst] = size
	return nil
}

func (b *memBackend) Delete(_ context.Context, key string) error {
	b.record("delete " + key)
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *memBackend) put(key string, size int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = size
}

func (b *memBackend) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

func (b *memBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
