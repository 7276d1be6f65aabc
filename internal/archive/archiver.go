// Package archive writes finished reports to a blob store as JSON.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/JakeFAU/dorank/internal/stats"
)

// BlobStore is the subset of a blob backend the archiver needs.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Archiver implements stats.Archiver.
type Archiver struct {
	store  BlobStore
	prefix string
}

// New creates an Archiver writing under prefix.
func New(store BlobStore, prefix string) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	return &Archiver{store: store, prefix: prefix}, nil
}

// ObjectPath returns the path a report is archived under:
// <prefix>/<yyyy>/<mm>/<dd>/<cycle_id>.json.
func (a *Archiver) ObjectPath(report stats.Report) string {
	ts := report.GeneratedAt.UTC()
	return path.Join(a.prefix, ts.Format("2006/01/02"), report.CycleID+".json")
}

// Archive stores report and returns its URI.
func (a *Archiver) Archive(ctx context.Context, report stats.Report) (string, error) {
	if report.CycleID == "" {
		return "", fmt.Errorf("report cycle id is required")
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	uri, err := a.store.PutObject(ctx, a.ObjectPath(report), "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("put report: %w", err)
	}
	return uri, nil
}
