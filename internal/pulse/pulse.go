// Package pulse holds the domain types shared by the ingestion pipeline, the
// stores and the read API.
package pulse

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfiguration is returned before any work happens when the runtime
	// configuration can't support the requested run.
	ErrConfiguration = errors.New("configuration error")
	// ErrNoSources is returned when registry resolution leaves nothing to ingest.
	ErrNoSources = errors.New("no sources available for seeding")
	// ErrInvalidSource marks a source record that is missing an id, name or endpoint.
	ErrInvalidSource = errors.New("invalid source entry")
	// ErrUpsert wraps failures of bulk source writes.
	ErrUpsert   = errors.New("upsert failed")
	ErrNotFound = errors.New("resource not found")
)

// FetchError is a request to a source endpoint that failed after all attempts.
type FetchError struct {
	URL    string
	Status int // Zero when no response was received
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 && e.Err == nil {
		return fmt.Sprintf("request to %s failed with status %d (%s)", e.URL, e.Status, http.StatusText(e.Status))
	}
	if e.Status != 0 {
		return fmt.Sprintf("request to %s failed with status %d: %s", e.URL, e.Status, e.Err)
	}

	return fmt.Sprintf("request to %s failed: %s", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ItemError is a failure to process one article or one nested source.
type ItemError struct {
	SourceID string
	Ref      string // Url of the article or id of the nested source, if known
	Err      error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("error processing item %q from source %s: %s", e.Ref, e.SourceID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}
