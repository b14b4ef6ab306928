package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github-commit-collector/internal/model"
	"github-commit-collector/internal/storage"
)

// Handler is the container for API dependencies.
type Handler struct {
	query  *storage.Query
	logger *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
// The API is read-only: it serves the partitions the pipeline has written.
func NewRouter(query *storage.Query, logger *slog.Logger) http.Handler {
	h := &Handler{
		query:  query,
		logger: logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/repos/{owner}/{name}", h.getRepository)
		r.Get("/repos/{owner}/{name}/commits", h.getCommits)
		r.Get("/repos/{owner}/{name}/file-changes", h.getFileChanges)
	})

	return r
}

// repositoryID rebuilds the canonical repository id partitions are keyed by.
func repositoryID(owner, name string) string {
	return fmt.Sprintf("https://github.com/%s/%s", owner, name)
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getRepository returns the stored repository snapshot.
// GET /v1/repos/{owner}/{name}
func (h *Handler) getRepository(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	name := chi.URLParam(r, "name")

	repo, err := h.query.Repository(r.Context(), repositoryID(owner, name))
	if err != nil {
		h.logger.Error("Failed to get repository", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if repo == nil {
		respondWithError(w, http.StatusNotFound, "Repository not collected")
		return
	}

	respondWithJSON(w, http.StatusOK, repo)
}

// getCommits returns every stored commit for a repository, across all
// year/month partitions. An uncollected repository yields an empty list.
// GET /v1/repos/{owner}/{name}/commits
func (h *Handler) getCommits(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	name := chi.URLParam(r, "name")

	commits, err := h.query.CommitsByRepository(r.Context(), repositoryID(owner, name))
	if err != nil {
		h.logger.Error("Failed to get commits", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if commits == nil {
		commits = []model.Commit{}
	}

	respondWithJSON(w, http.StatusOK, commits)
}

// getFileChanges returns a repository's file changes, optionally filtered by
// inferred file extension.
// GET /v1/repos/{owner}/{name}/file-changes?type=go
func (h *Handler) getFileChanges(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	name := chi.URLParam(r, "name")
	fileType := r.URL.Query().Get("type")

	var (
		changes []model.FileChange
		err     error
	)
	if fileType != "" {
		changes, err = h.query.FileChangesByType(r.Context(), repositoryID(owner, name), fileType)
	} else {
		changes, err = h.query.FileChangesByRepository(r.Context(), repositoryID(owner, name))
	}
	if err != nil {
		h.logger.Error("Failed to get file changes", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if changes == nil {
		changes = []model.FileChange{}
	}

	respondWithJSON(w, http.StatusOK, changes)
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}
