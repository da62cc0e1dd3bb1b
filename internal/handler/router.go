package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lostsidewalk/newsgears-rss-importer/internal/discovery"
	"github.com/lostsidewalk/newsgears-rss-importer/internal/metrics"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	ImportService    ImportServiceInterface
	DiscoveryService DiscoveryServiceInterface
	DiscoveryCache   *discovery.Cache
	Gatherer         prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングを構成したchi.Routerを返す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)

	importHandler := NewImportHandler(deps.ImportService, deps.DiscoveryCache)
	discoveryHandler := NewDiscoveryHandler(deps.DiscoveryService, deps.DiscoveryCache)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler(deps.Gatherer))

	r.Route("/api", func(r chi.Router) {
		r.Post("/import", importHandler.DoImport)
		r.Post("/discovery", discoveryHandler.Discover)
	})

	return r
}
