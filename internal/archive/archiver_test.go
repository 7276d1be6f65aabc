package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/dorank/internal/stats"
	"github.com/JakeFAU/dorank/internal/storage/memory"
)

func TestArchiveWritesJSON(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	archiver, err := New(blobs, "reports")
	require.NoError(t, err)

	report := stats.Report{
		CycleID:     "cycle-1",
		Trigger:     stats.TriggerScheduled,
		GeneratedAt: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
		Header:      "Weekly stats",
		Sections: []stats.Section{{
			Metric:   stats.KeyMarketplaceRankMin,
			Label:    "Marketplace rank",
			Observed: 55,
			IsRecord: true,
		}},
	}
	uri, err := archiver.Archive(context.Background(), report)
	require.NoError(t, err)
	require.Equal(t, "memory://reports/2026/10/19/cycle-1.json", uri)

	raw, ok := blobs.Object("reports/2026/10/19/cycle-1.json")
	require.True(t, ok)
	var decoded stats.Report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "cycle-1", decoded.CycleID)
	require.Len(t, decoded.Sections, 1)
}

func TestArchivePropagatesErrors(t *testing.T) {
	t.Parallel()

	archiver, err := New(failingStore{}, "")
	require.NoError(t, err)

	_, err = archiver.Archive(context.Background(), stats.Report{CycleID: "c"})
	require.ErrorContains(t, err, "bucket gone")

	_, err = archiver.Archive(context.Background(), stats.Report{})
	require.Error(t, err)

	_, err = New(nil, "")
	require.Error(t, err)
}

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket gone")
}
