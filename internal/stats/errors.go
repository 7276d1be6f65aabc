package stats

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by errors.Is against any *NotFoundError.
var ErrNotFound = errors.New("target not found in listing")

// FetchError reports a failed page or resource retrieval: network failure,
// non-2xx status or timeout.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NotFoundError reports that the listing ran out of pages without the target.
type NotFoundError struct {
	TargetID     string
	PagesVisited int
	LastURL      string
	Reason       string
}

func (e *NotFoundError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "no next page"
	}
	return fmt.Sprintf("target %q not found after %d page(s), last %s: %s",
		e.TargetID, e.PagesVisited, e.LastURL, reason)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// StorageError reports an unavailable or corrupt extremum store. It is never
// used for a key that simply has no value yet.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("extremum store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("extremum store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err wraps a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsStorageError reports whether err wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
