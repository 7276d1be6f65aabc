package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestSQLiteRoundTripSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "extremes.db")
	keys := []string{"marketplace_rank_min", "issue_credit_count_max"}

	store, err := Open(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, store.Init(ctx, keys))

	got, err := store.Get(ctx, "marketplace_rank_min")
	require.NoError(t, err)
	require.Nil(t, got, "seeded keys start out null")

	require.NoError(t, store.Set(ctx, "marketplace_rank_min", 55))
	require.NoError(t, store.Set(ctx, "marketplace_rank_min", 42))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	// Init again must not reset recorded values.
	require.NoError(t, reopened.Init(ctx, keys))
	got, err = reopened.Get(ctx, "marketplace_rank_min")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 42.0, *got)

	missing, err := reopened.Get(ctx, "never_seeded")
	require.NoError(t, err)
	require.Nil(t, missing)
	require.NoError(t, reopened.Ping(ctx))
}

func TestDriverFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		dsn  string
		want string
	}{
		{dsn: "state.db", want: "sqlite"},
		{dsn: "file:state.db?_pragma=busy_timeout(5000)", want: "sqlite"},
		{dsn: "libsql://dorank.turso.io?authToken=x", want: "libsql"},
		{dsn: "https://dorank.turso.io", want: "libsql"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, DriverFor(tt.dsn), tt.dsn)
	}
}

func TestErrorsPropagate(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store := NewWithDB(db, "sqlite")
	t.Cleanup(func() { _ = store.Close() })

	mock.ExpectQuery(regexp.QuoteMeta(selectValue)).
		WithArgs("k").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectExec(regexp.QuoteMeta(upsertValue)).
		WithArgs("k", 3.0).
		WillReturnError(errors.New("readonly database"))

	_, err = store.Get(context.Background(), "k")
	require.ErrorContains(t, err, "disk I/O error")
	require.ErrorContains(t, store.Set(context.Background(), "k", 3), "readonly database")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInitRollsBackOnSeedFailure(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store := NewWithDB(db, "sqlite")
	t.Cleanup(func() { _ = store.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS keyvalues").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(seedKey)).
		WithArgs("a").
		WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	err = store.Init(context.Background(), []string{"a", "b"})
	require.ErrorContains(t, err, "seed a")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "  ")
	require.Error(t, err)
}
