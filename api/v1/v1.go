// Package v1 holds the request and response bodies of the read API and the
// admin endpoints.
package v1

import (
	"fmt"
	"net/http"

	pulseerrs "github.com/jdholdren/pulse/internal/errors"
	"github.com/jdholdren/pulse/internal/normalize"
	"github.com/jdholdren/pulse/internal/pulse"
)

type (
	// ArticlePage is a page of the latest or search listings.
	ArticlePage = pulse.ArticlePage

	// UpsertSourcesRequest is a list of source records, in any of the shapes
	// accepted by the bootstrap file.
	UpsertSourcesRequest []map[string]any

	UpsertSourcesResponse struct {
		OK     bool               `json:"ok"`
		Result pulse.UpsertCounts `json:"result"`
	}

	HealthResponse struct {
		OK bool `json:"ok"`
	}
)

// Validate checks that every entry normalizes to a source.
//
// Returns an error carrying one detail per rejected entry.
func (r UpsertSourcesRequest) Validate() error {
	details := []pulseerrs.Detail{}
	for i, entry := range r {
		if _, err := normalize.Source(entry); err != nil {
			details = append(details, pulseerrs.Detail{
				Field: fmt.Sprintf("[%d]", i),
				Error: err.Error(),
			})
		}
	}
	if len(details) > 0 {
		return pulseerrs.E(http.StatusBadRequest, "request was invalid", details)
	}

	return nil
}

// Sources normalizes the entries, dropping any that don't validate.
func (r UpsertSourcesRequest) Sources() []pulse.Source {
	sources, _ := normalize.Sources(r)
	return sources
}
