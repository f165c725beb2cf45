// Package httphandler serves the access URL status endpoint that ssconf://
// links point at.
package httphandler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ericfisherdev/keyhub/internal/domain/model"
)

// AccessURLSource resolves the raw access URL of a key. It returns "" when
// the key does not exist or has expired.
type AccessURLSource interface {
	GetRawAccessURL(ctx context.Context, ref model.OwnerRef, id string) (string, error)
}

// Handler is the HTTP driving adapter for the status endpoint.
type Handler struct {
	keys   AccessURLSource
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(keys AccessURLSource, logger *slog.Logger) *Handler {
	return &Handler{
		keys:   keys,
		logger: logger,
	}
}

// NewRouter creates an http.Handler with all routes registered and wrapped
// with CORS, logging and recovery middleware.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(corsMiddleware)
	r.Use(loggingMiddleware(logger))
	// Recovery innermost so panics are caught before logging.
	r.Use(recoveryMiddleware(logger))

	r.Get("/healthz", h.Health)
	r.Get("/{owner}/{id}", h.GetAccessURL)
	r.Get("/{id}", h.GetAccessURL)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusNotFound, "")
	})

	return r
}

// Health reports that the process is serving requests.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// GetAccessURL answers with the raw access URL of the key named by the path.
// Without an owner segment the key is looked up under the system owner.
func (h *Handler) GetAccessURL(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	ref := model.OwnerByID(model.SystemOwnerID)
	if owner := pathParam(r, "owner"); owner != "" {
		ref = model.ParseOwnerRef(owner)
	}

	accessURL, err := h.keys.GetRawAccessURL(r.Context(), ref, id)
	if err != nil {
		h.logger.Error("failed to resolve access url", "owner", ref.String(), "error", err)
		writeText(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if accessURL == "" {
		writeText(w, http.StatusNotFound, "")
		return
	}

	writeText(w, http.StatusOK, accessURL)
}

func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
