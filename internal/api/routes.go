package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Pipeline
	mux.Handle("GET /api/v1/pipeline", chain(http.HandlerFunc(h.GetPipeline)))
	mux.Handle("POST /api/v1/pipeline/start", chain(http.HandlerFunc(h.StartPipeline)))
	mux.Handle("POST /api/v1/pipeline/reset", chain(http.HandlerFunc(h.ResetPipeline)))
	mux.Handle("GET /api/v1/pipeline/events", chain(http.HandlerFunc(h.StreamEvents)))

	// Catalog
	mux.Handle("GET /api/v1/catalog", chain(http.HandlerFunc(h.GetCatalog)))
}
