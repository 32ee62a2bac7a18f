package rest

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Roshandass172/bot1/internal/api/middleware"
)

// RegisterRoutes mounts the API on router. Uploads pass through limiter and
// are capped at maxUploadBytes.
func (h *Handler) RegisterRoutes(router *mux.Router, limiter *middleware.RateLimiter, maxUploadBytes int64) {
	upload := limiter.Middleware(middleware.MaxBodySize(maxUploadBytes)(http.HandlerFunc(h.Upload)))
	router.Handle("/upload", upload).Methods(http.MethodPost)
	router.HandleFunc("/download/{filename}", h.Download).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/healthz/live", h.Live).Methods(http.MethodGet)
	router.HandleFunc("/healthz/ready", h.Ready).Methods(http.MethodGet)
}
