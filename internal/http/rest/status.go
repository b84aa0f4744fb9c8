package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/mocap_installer/internal/logctx"
	"github.com/italolelis/mocap_installer/internal/storage"
	"github.com/italolelis/mocap_installer/internal/transfer"
)

const healthTimeout = 3 * time.Second

// ArtifactView is the JSON form of a ledger entry.
type ArtifactView struct {
	Name             string    `json:"name"`
	Path             string    `json:"path"`
	URL              string    `json:"url,omitempty"`
	Source           string    `json:"source,omitempty"`
	Checksum         string    `json:"checksum,omitempty"`
	Status           string    `json:"status"`
	Attempts         int       `json:"attempts"`
	Bytes            int64     `json:"bytes"`
	ChecksumMismatch bool      `json:"checksumMismatch"`
	RunID            string    `json:"runId"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	Daemon        string `json:"daemon"`
	Error         string `json:"error,omitempty"`
	NumActive     int    `json:"numActive"`
	NumWaiting    int    `json:"numWaiting"`
	DownloadSpeed int64  `json:"downloadSpeed"`
}

// StatusHandler serves the artifact ledger and daemon health.
type StatusHandler struct {
	repo     storage.ArtifactReadRepository
	daemon   transfer.Daemon
	username string
	password string
}

// NewStatusHandler creates the status API. Basic auth is enforced when username is set.
func NewStatusHandler(repo storage.ArtifactReadRepository, daemon transfer.Daemon, username, password string) *StatusHandler {
	return &StatusHandler{
		repo:     repo,
		daemon:   daemon,
		username: username,
		password: password,
	}
}

func (h *StatusHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", h.HandleHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.basicAuthMiddleware)

		r.Get("/artifacts", h.HandleListArtifacts)
		r.Get("/artifacts/{name}", h.HandleGetArtifact)
	})

	return r
}

// HandleHealth reports whether the download daemon answers.
func (h *StatusHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	if h.daemon == nil {
		writeJSON(r.Context(), w, http.StatusOK, HealthResponse{Status: "ok", Daemon: "not configured"})

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	stats, err := h.daemon.Stats(ctx)
	if err != nil {
		logger.Warn("download daemon health check failed", "err", err)
		writeJSON(r.Context(), w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Daemon: "unreachable", Error: err.Error()})

		return
	}

	writeJSON(r.Context(), w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Daemon:        "reachable",
		NumActive:     stats.NumActive,
		NumWaiting:    stats.NumWaiting,
		DownloadSpeed: stats.DownloadSpeed,
	})
}

// HandleListArtifacts lists the ledger; ?status=failed filters by status.
func (h *StatusHandler) HandleListArtifacts(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	records, err := h.repo.ListArtifacts(r.Context())
	if err != nil {
		logger.Error("failed to list artifacts", "err", err)
		http.Error(w, "failed to list artifacts", http.StatusInternalServerError)

		return
	}

	status := r.URL.Query().Get("status")
	views := make([]ArtifactView, 0, len(records))

	for _, rec := range records {
		if status != "" && rec.Status != status {
			continue
		}

		views = append(views, toView(rec))
	}

	writeJSON(r.Context(), w, http.StatusOK, views)
}

func (h *StatusHandler) HandleGetArtifact(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())
	name := chi.URLParam(r, "name")

	rec, err := h.repo.GetArtifact(r.Context(), name)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "artifact not found", http.StatusNotFound)

		return
	}

	if err != nil {
		logger.Error("failed to get artifact", "name", name, "err", err)
		http.Error(w, "failed to get artifact", http.StatusInternalServerError)

		return
	}

	writeJSON(r.Context(), w, http.StatusOK, toView(*rec))
}

func (h *StatusHandler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.username == "" {
			next.ServeHTTP(w, r)

			return
		}

		username, password, ok := r.BasicAuth()
		if !ok {
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)

			return
		}

		if username != h.username || password != h.password {
			http.Error(w, "invalid username or password", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func toView(rec storage.ArtifactRecord) ArtifactView {
	return ArtifactView{
		Name:             rec.Name,
		Path:             rec.Path,
		URL:              rec.URL,
		Source:           rec.Source,
		Checksum:         rec.Checksum,
		Status:           rec.Status,
		Attempts:         rec.Attempts,
		Bytes:            rec.Bytes,
		ChecksumMismatch: rec.ChecksumMismatch,
		RunID:            rec.RunID,
		UpdatedAt:        rec.UpdatedAt,
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to encode response", "err", err)
	}
}
