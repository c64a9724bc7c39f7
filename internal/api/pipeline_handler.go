package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// maxStartBody — ограничение размера тела запроса start.
const maxStartBody = 1 << 20

// GetPipeline возвращает текущий snapshot pipeline.
// GET /api/v1/pipeline
func (h *Handler) GetPipeline(w http.ResponseWriter, _ *http.Request) {
	Success(w, h.pipeline.Snapshot())
}

// StartPipeline запускает новый run.
// POST /api/v1/pipeline/start
func (h *Handler) StartPipeline(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStartBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	if HandlePipelineError(w, h.logger, h.pipeline.Start(r.Context(), req.Payload)) {
		return
	}

	Accepted(w, h.pipeline.Snapshot())
}

// ResetPipeline возвращает pipeline в IDLE.
// POST /api/v1/pipeline/reset
func (h *Handler) ResetPipeline(w http.ResponseWriter, _ *http.Request) {
	if HandlePipelineError(w, h.logger, h.pipeline.Reset()) {
		return
	}

	Success(w, h.pipeline.Snapshot())
}

// GetCatalog возвращает каталог шагов.
// GET /api/v1/catalog
func (h *Handler) GetCatalog(w http.ResponseWriter, _ *http.Request) {
	cat := h.pipeline.Catalog()
	steps := cat.Steps()

	result := CatalogResponse{
		Steps:             make([]CatalogStepResponse, len(steps)),
		NominalDurationMs: cat.NominalDuration().Milliseconds(),
	}
	for i, s := range steps {
		result.Steps[i] = CatalogStepFromDomain(i, s)
	}

	Success(w, result)
}
