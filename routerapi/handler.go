// Package routerapi exposes the LLM provider router over HTTP, the same
// chi-based handler pattern the storage service uses for its own surface.
package routerapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/enterprise-email/platform/provider"
)

// Handler handles HTTP requests for chat completion and embedding routing.
type Handler struct {
	router *provider.Router
	logger zerolog.Logger
}

// NewHandler creates a new router handler.
func NewHandler(router *provider.Router, logger zerolog.Logger) *Handler {
	return &Handler{
		router: router,
		logger: logger.With().Str("component", "router_handler").Logger(),
	}
}

// Router returns the HTTP router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.healthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/complete", h.complete)
		r.Post("/complete/stream", h.completeStream)
		r.Post("/embed", h.embed)
		r.Post("/embed/batch", h.embedBatch)
		r.Get("/providers/health", h.providersHealth)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

type completeRequest struct {
	Feature string                     `json:"feature"`
	Request *provider.CompletionRequest `json:"request"`
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Request == nil {
		h.errorResponse(w, http.StatusBadRequest, "request is required")
		return
	}

	resp, err := h.router.CompleteWithFallback(r.Context(), req.Request, req.Feature)
	if err != nil {
		h.handleProviderError(w, err)
		return
	}

	h.jsonResponse(w, http.StatusOK, resp)
}

func (h *Handler) completeStream(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Request == nil {
		h.errorResponse(w, http.StatusBadRequest, "request is required")
		return
	}

	feature := req.Feature
	providerInst, err := h.router.GetProvider(r.Context(), feature)
	if err != nil {
		h.handleProviderError(w, err)
		return
	}

	stream, err := providerInst.CompleteStream(r.Context(), req.Request)
	if err != nil {
		h.handleProviderError(w, err)
		return
	}
	defer stream.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.errorResponse(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	encoder := json.NewEncoder(writerNoNewline{bw})

	for {
		chunk, err := stream.Recv()
		if chunk != nil {
			bw.WriteString("data: ")
			_ = encoder.Encode(chunk)
			bw.WriteString("\n\n")
			bw.Flush()
			flusher.Flush()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				h.logger.Error().Err(err).Msg("Stream error mid-flight")
			}
			return
		}
	}
}

// writerNoNewline adapts an io.Writer for json.Encoder so the trailing
// newline it normally appends doesn't break the "data: <json>\n\n" framing
// written around it.
type writerNoNewline struct{ w io.Writer }

func (w writerNoNewline) Write(p []byte) (int, error) {
	if len(p) > 0 && p[len(p)-1] == '\n' {
		p = p[:len(p)-1]
	}
	return w.w.Write(p)
}

type embedRequest struct {
	Request *provider.EmbeddingRequest `json:"request"`
}

func (h *Handler) embed(w http.ResponseWriter, r *http.Request) {
	var req embedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Request == nil {
		h.errorResponse(w, http.StatusBadRequest, "request is required")
		return
	}

	resp, err := h.router.EmbeddingWithFallback(r.Context(), req.Request)
	if err != nil {
		h.handleProviderError(w, err)
		return
	}

	h.jsonResponse(w, http.StatusOK, resp)
}

type embedBatchRequest struct {
	Request *provider.EmbeddingBatchRequest `json:"request"`
}

func (h *Handler) embedBatch(w http.ResponseWriter, r *http.Request) {
	var req embedBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Request == nil {
		h.errorResponse(w, http.StatusBadRequest, "request is required")
		return
	}

	providerInst, err := h.router.GetEmbeddingProvider(r.Context())
	if err != nil {
		h.handleProviderError(w, err)
		return
	}

	resp, err := providerInst.GenerateEmbeddingBatch(r.Context(), req.Request)
	if err != nil {
		h.handleProviderError(w, err)
		return
	}

	h.jsonResponse(w, http.StatusOK, resp)
}

func (h *Handler) providersHealth(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, h.router.GetHealthStatus())
}

func (h *Handler) handleProviderError(w http.ResponseWriter, err error) {
	var providerErr *provider.ProviderError
	if errors.As(err, &providerErr) {
		status := http.StatusBadGateway
		switch providerErr.Code {
		case provider.ErrCodeAuthentication:
			status = http.StatusUnauthorized
		case provider.ErrCodeInvalidRequest, provider.ErrCodeContextLength:
			status = http.StatusBadRequest
		case provider.ErrCodeRateLimited:
			status = http.StatusTooManyRequests
		case provider.ErrCodeUnavailable:
			status = http.StatusServiceUnavailable
		}
		h.errorResponse(w, status, providerErr.Message)
		return
	}
	h.logger.Error().Err(err).Msg("Unhandled provider error")
	h.errorResponse(w, http.StatusInternalServerError, "provider request failed")
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}
