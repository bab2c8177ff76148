// Package admin exposes operator endpoints guarded by the admin token.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	dErrors "catalog/pkg/domain-errors"
	audit "catalog/pkg/platform/audit"
	"catalog/pkg/platform/audit/queue"
	"catalog/pkg/platform/httputil"
	adminmw "catalog/pkg/platform/middleware/admin"
)

// FailedJobLister is the read side of the audit queue.
type FailedJobLister interface {
	Failed(ctx context.Context) ([]queue.Job, error)
}

// RecordLister is the read side of the activity log.
type RecordLister interface {
	ListRecent(ctx context.Context, limit int) ([]audit.Record, error)
}

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

type Handler struct {
	jobs    FailedJobLister
	records RecordLister
	logger  *slog.Logger
}

func New(jobs FailedJobLister, records RecordLister, logger *slog.Logger) *Handler {
	return &Handler{jobs: jobs, records: records, logger: logger}
}

// Register mounts admin routes under /admin behind the admin token.
func (h *Handler) Register(r chi.Router, adminToken string) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(adminToken, h.logger))
		r.Get("/audit/failed", h.HandleListFailedJobs)
		r.Get("/audit/recent", h.HandleListRecentRecords)
	})
}

// HandleListFailedJobs lists audit jobs that exhausted their retries and are
// still within the failed-bucket retention window.
func (h *Handler) HandleListFailedJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobs, err := h.jobs.Failed(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list failed audit jobs", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list failed audit jobs"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toFailedJobsResponse(jobs))
}

// HandleListRecentRecords lists materialized activity records, newest first.
// The optional limit query parameter defaults to 50 and is capped at 500.
func (h *Handler) HandleListRecentRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxRecentLimit)
	}

	records, err := h.records.ListRecent(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit records", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit records"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordsResponse(records))
}
