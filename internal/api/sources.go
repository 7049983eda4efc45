package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	v1 "github.com/jdholdren/pulse/api/v1"
	pulseerrs "github.com/jdholdren/pulse/internal/errors"
	"github.com/jdholdren/pulse/internal/server"
)

func (s Server) getSources(w http.ResponseWriter, r *http.Request) error {
	sources, err := s.repo.ActiveSources(r.Context())
	if err != nil {
		return err
	}

	return server.WriteJSON(w, http.StatusOK, sources)
}

// Upserts a batch of sources, merging by id.
func (s Server) postUpsertSources(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	req, err := server.DecodeValid[v1.UpsertSourcesRequest](r.Body)
	switch {
	case errors.Is(err, io.EOF):
		// An empty body is an empty batch
		req = v1.UpsertSourcesRequest{}
	case err != nil:
		var sErr *pulseerrs.Error
		if errors.As(err, &sErr) {
			return sErr
		}
		return pulseerrs.E(http.StatusBadRequest, err)
	}

	sources := req.Sources()
	if len(sources) == 0 {
		return server.WriteJSON(w, http.StatusOK, v1.UpsertSourcesResponse{OK: true})
	}

	counts, err := s.repo.UpsertSources(ctx, sources)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "upserted sources",
		"matched", counts.Matched,
		"upserted", counts.Upserted,
		"modified", counts.Modified,
	)

	return server.WriteJSON(w, http.StatusOK, v1.UpsertSourcesResponse{
		OK:     true,
		Result: counts,
	})
}
