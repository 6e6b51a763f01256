package quota

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printforge/upload/internal/apperr"
)

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepository(mock), mock
}

func TestRepository_Usage(t *testing.T) {
	repo, mock := newMockRepo(t)
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM quota_entries")).
		WithArgs("session", "s1", day, day).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(1234)))

	used, err := repo.Usage(context.Background(), ScopeSession, "s1", day, day)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), used)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_RecentUserBytes(t *testing.T) {
	repo, mock := newMockRepo(t)
	since := time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("JOIN uploads u ON u.id = f.upload_id")).
		WithArgs("u1", since).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(77)))

	used, err := repo.RecentUserBytes(context.Background(), "u1", since)
	require.NoError(t, err)
	assert.Equal(t, int64(77), used)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Add(t *testing.T) {
	repo, mock := newMockRepo(t)
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (scope, scope_id, period_start)")).
		WithArgs("ip", "10.0.0.1", day, int64(500)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Add(context.Background(), ScopeIP, "10.0.0.1", day, 500))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_MoveSessionToUser(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("WITH moved AS (")).
		WithArgs("s1", "u1").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	moved, err := repo.MoveSessionToUser(context.Background(), "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_TimeoutIsTransient(t *testing.T) {
	repo, mock := newMockRepo(t)
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM quota_entries")).
		WithArgs("user", "u1", day, day).
		WillReturnError(context.DeadlineExceeded)

	_, err := repo.Usage(context.Background(), ScopeUser, "u1", day, day)
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))
}

func TestRepository_AddError(t *testing.T) {
	repo, mock := newMockRepo(t)
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO quota_entries")).
		WithArgs("user", "u1", day, int64(1)).
		WillReturnError(errors.New("constraint violated"))

	err := repo.Add(context.Background(), ScopeUser, "u1", day, 1)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}
