package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	v1 "github.com/jdholdren/pulse/api/v1"
	"github.com/jdholdren/pulse/internal/pulse"
	"github.com/jdholdren/pulse/internal/server"
)

// errRouter is a newtype around a mux router that allows attaching handlers that return errors.
type errRouter struct {
	*mux.Router
}

func (r errRouter) HandleFuncE(path string, f server.HandlerFuncE) *mux.Route {
	return r.Handle(path, f)
}

const (
	articleCacheSize = 1024
	articleCacheTTL  = 5 * time.Minute
)

type (
	// Repo is what the API reads from, and the admin endpoint writes to.
	Repo interface {
		pulse.SourceRepo
		pulse.ArticleQuery
	}

	// Server serves the article listings, the source list and the admin
	// endpoints.
	Server struct {
		*http.Server

		repo         Repo
		apiKey       string
		articleCache *expirable.LRU[string, pulse.Article]
	}

	ServerConfig struct {
		Port       int
		CorsOrigin string
		APIKey     string // Required on admin endpoints when set
	}

	Params struct {
		fx.In

		Config ServerConfig
		Repo   Repo
	}
)

func NewServer(lc fx.Lifecycle, p Params) Server {
	srvr := newServer(p.Config, p.Repo)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srvr.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("api server stopped", "err", err)
				}
			}()

			slog.Info("started api server", "port", p.Config.Port)

			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srvr.Shutdown(ctx)
		},
	})

	return srvr
}

func newServer(config ServerConfig, repo Repo) Server {
	r := errRouter{Router: mux.NewRouter()}

	origin := config.CorsOrigin
	if origin == "" {
		origin = "*"
	}

	srvr := Server{
		repo:         repo,
		apiKey:       config.APIKey,
		articleCache: expirable.NewLRU[string, pulse.Article](articleCacheSize, nil, articleCacheTTL),
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			Handler: handlers.CORS(
				handlers.AllowedOrigins([]string{origin}),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"content-type", apiKeyHeader}),
			)(r),
		},
	}

	r.Use(server.AccessLogMiddleware) // Log everything
	r.HandleFuncE("/health", srvr.getHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Read API
	r.HandleFuncE("/api/v1/articles/latest", srvr.getLatestArticles).Methods(http.MethodGet)
	r.HandleFuncE("/api/v1/articles/search", srvr.getSearchArticles).Methods(http.MethodGet)
	r.HandleFuncE("/api/v1/articles/{id}", srvr.getArticle).Methods(http.MethodGet)
	r.HandleFuncE("/api/v1/sources", srvr.getSources).Methods(http.MethodGet)

	admin := errRouter{Router: r.PathPrefix("/api/admin").Subrouter()}
	admin.Use(requireAPIKeyMiddleware(config.APIKey))
	admin.HandleFuncE("/sources/upsert-many", srvr.postUpsertSources).Methods(http.MethodPost)

	slog.Debug("configured api server", "port", config.Port)

	return srvr
}

func (s Server) getHealth(w http.ResponseWriter, r *http.Request) error {
	return server.WriteJSON(w, http.StatusOK, v1.HealthResponse{OK: true})
}
