package stats

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "fetch with status",
			err:  &FetchError{URL: "https://x.test", StatusCode: 404, Err: errors.New("not found")},
			want: "fetch https://x.test: status 404: not found",
		},
		{
			name: "fetch without status",
			err:  &FetchError{URL: "https://x.test", Err: errors.New("timeout")},
			want: "fetch https://x.test: timeout",
		},
		{
			name: "not found default reason",
			err:  &NotFoundError{TargetID: "7", PagesVisited: 2, LastURL: "https://x.test/p2"},
			want: `target "7" not found after 2 page(s), last https://x.test/p2: no next page`,
		},
		{
			name: "storage with key",
			err:  &StorageError{Op: "set", Key: "k", Err: errors.New("locked")},
			want: `extremum store set "k": locked`,
		},
		{
			name: "storage without key",
			err:  &StorageError{Op: "ping", Err: errors.New("down")},
			want: "extremum store ping: down",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestMessageIsError(t *testing.T) {
	t.Parallel()

	require.True(t, Message{ErrorText: "x"}.IsError())
	require.False(t, Message{Report: &Report{}}.IsError())
}
