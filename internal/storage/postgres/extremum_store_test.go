package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*ExtremumStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	return store, mock
}

func TestInitCreatesTableAndSeedsKeys(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS keyvalues").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO keyvalues").
		WithArgs("marketplace_rank_min").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO keyvalues").
		WithArgs("weekly_timestamp").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := store.Init(context.Background(), []string{"marketplace_rank_min", "weekly_timestamp"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetHandlesValueNullAndMissing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT value FROM keyvalues").
		WithArgs("marketplace_rank_min").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow(55.0))
	mock.ExpectQuery("SELECT value FROM keyvalues").
		WithArgs("projects_supported_max").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow(nil))
	mock.ExpectQuery("SELECT value FROM keyvalues").
		WithArgs("unknown").
		WillReturnError(pgx.ErrNoRows)

	got, err := store.Get(context.Background(), "marketplace_rank_min")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 55.0, *got)

	got, err = store.Get(context.Background(), "projects_supported_max")
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = store.Get(context.Background(), "unknown")
	require.NoError(t, err)
	require.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetUpserts(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO keyvalues").
		WithArgs("issue_credit_count_max", 120.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Set(context.Background(), "issue_credit_count_max", 120))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorsPropagate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT value FROM keyvalues").
		WithArgs("k").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectExec("INSERT INTO keyvalues").
		WithArgs("k", 1.0).
		WillReturnError(errors.New("read only"))

	_, err := store.Get(context.Background(), "k")
	require.ErrorContains(t, err, "connection reset")
	require.ErrorContains(t, store.Set(context.Background(), "k", 1), "read only")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "bad;table")
	require.Error(t, err)
	_, err = NewWithPool(nil, "")
	require.Error(t, err)
	_, err = New(context.Background(), Config{})
	require.Error(t, err)
}
