package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	pulseerrs "github.com/jdholdren/pulse/internal/errors"
	"github.com/jdholdren/pulse/internal/pulse"
	"github.com/jdholdren/pulse/internal/server"
)

func (s Server) getLatestArticles(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	page, size := parsePaginationParams(r, pulse.MaxLatestPageSize)
	from, err := parseTimeParam(r, "from")
	if err != nil {
		return err
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		return err
	}

	result, err := s.repo.LatestArticles(ctx, pulse.LatestQuery{
		Page:     page,
		PageSize: size,
		SourceID: r.URL.Query().Get("sourceId"),
		Language: r.URL.Query().Get("language"),
		From:     from,
		To:       to,
	})
	if err != nil {
		return err
	}

	return server.WriteJSON(w, http.StatusOK, result)
}

func (s Server) getSearchArticles(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		return pulseerrs.E(
			http.StatusBadRequest,
			"q is required",
			pulseerrs.Detail{Field: "q", Error: "required"},
		)
	}

	page, size := parsePaginationParams(r, pulse.MaxSearchPageSize)
	result, err := s.repo.SearchArticles(ctx, pulse.SearchQuery{
		Q:        q,
		Page:     page,
		PageSize: size,
		SourceID: r.URL.Query().Get("sourceId"),
		Language: r.URL.Query().Get("language"),
	})
	if err != nil {
		return err
	}

	return server.WriteJSON(w, http.StatusOK, result)
}

func (s Server) getArticle(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if article, ok := s.articleCache.Get(id); ok {
		slog.DebugContext(ctx, "article cache hit", "id", id)
		return server.WriteJSON(w, http.StatusOK, article)
	}

	article, err := s.repo.Article(ctx, id)
	if errors.Is(err, pulse.ErrNotFound) {
		return pulseerrs.E(http.StatusNotFound, "article not found")
	}
	if err != nil {
		return err
	}
	s.articleCache.Add(id, article)

	return server.WriteJSON(w, http.StatusOK, article)
}
