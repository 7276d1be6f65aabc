package stats

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsRecord(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		dir      Direction
		previous *float64
		observed float64
		want     bool
	}{
		{"higher first observation", HigherIsBetter, nil, 5, true},
		{"higher below record", HigherIsBetter, Float(10), 7, false},
		{"higher tie is not a record", HigherIsBetter, Float(10), 10, false},
		{"higher above record", HigherIsBetter, Float(10), 11, true},
		{"lower first observation", LowerIsBetter, nil, 50, true},
		{"lower tie is a record", LowerIsBetter, Float(50), 50, true},
		{"lower improvement", LowerIsBetter, Float(50), 49, true},
		{"lower regression", LowerIsBetter, Float(50), 51, false},
		{"higher zero previous", HigherIsBetter, Float(0), 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, IsRecord(tc.dir, tc.previous, tc.observed))
		})
	}
}

func TestGap(t *testing.T) {
	t.Parallel()

	require.Zero(t, Gap(HigherIsBetter, nil, 3))
	require.Equal(t, 3.0, Gap(HigherIsBetter, Float(10), 7))
	require.Zero(t, Gap(HigherIsBetter, Float(10), 12))
	require.Equal(t, 6.0, Gap(LowerIsBetter, Float(49), 55))
	require.Zero(t, Gap(LowerIsBetter, Float(55), 55))
}

func TestRankQueryNext(t *testing.T) {
	t.Parallel()

	q := RankQuery{StartURL: "https://example.test/list", TargetID: "42"}
	next := q.Next("https://example.test/list?page=1", 25)

	require.Equal(t, 0, q.RunningRank, "original query must not be mutated")
	require.Equal(t, 25, next.RunningRank)
	require.Equal(t, "42", next.TargetID)
	require.Equal(t, "https://example.test/list?page=1", next.StartURL)
}

func TestErrorsAreDistinguishable(t *testing.T) {
	t.Parallel()

	fetchErr := fmt.Errorf("resolve: %w", &FetchError{URL: "https://x.test", StatusCode: 503, Err: errors.New("unavailable")})
	notFound := fmt.Errorf("resolve: %w", &NotFoundError{TargetID: "42", PagesVisited: 3})
	storeErr := fmt.Errorf("cycle: %w", &StorageError{Op: "get", Key: "k", Err: errors.New("disk")})

	require.True(t, IsFetchError(fetchErr))
	require.False(t, IsFetchError(notFound))
	require.True(t, errors.Is(notFound, ErrNotFound))
	require.False(t, errors.Is(fetchErr, ErrNotFound))
	require.True(t, IsStorageError(storeErr))
	require.False(t, IsStorageError(fetchErr))
	require.Contains(t, fetchErr.Error(), "status 503")
	require.Contains(t, notFound.Error(), "no next page")
}

func TestRankResultPageBounded(t *testing.T) {
	t.Parallel()

	require.True(t, RankResult{Rank: 55, Page: 5}.PageBounded())
	require.False(t, RankResult{Rank: 55, Page: PageUnbounded}.PageBounded())
}
