package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"student-records/internal/httputil"
	"student-records/internal/metrics"

	"github.com/go-chi/chi/v5"
)

// Pinger is satisfied by *bun.DB and *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// DatabaseDependency is the dependency name reported by readiness metrics.
const DatabaseDependency = "postgres"

type Handler struct {
	db      Pinger
	timeout time.Duration
	metrics *metrics.HealthMetrics
	logger  *slog.Logger
}

// NewHandler builds the health check handler. db and m may be nil.
func NewHandler(db Pinger, m *metrics.HealthMetrics, logger *slog.Logger) *Handler {
	return &Handler{
		db:      db,
		timeout: 2 * time.Second,
		metrics: m,
		logger:  logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.Health)
	router.Get("/ready", h.Ready)
}

type HealthResponse struct {
	Status       string            `json:"status"`
	Error        string            `json:"error,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Health is the liveness check. It never touches the database; it reports
// the result of the last readiness check instead.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if h.metrics != nil {
		resp.Dependencies = map[string]string{
			DatabaseDependency: h.metrics.DependencyStatus(DatabaseDependency),
		}
	}
	httputil.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		start := time.Now()
		err := h.db.PingContext(ctx)
		h.metrics.RecordDependencyCheck(r.Context(), DatabaseDependency, time.Since(start), err)
		if err != nil {
			h.logger.WarnContext(r.Context(), "readiness check failed", "error", err)
			httputil.RespondWithJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: "database unreachable"})
			return
		}
	}

	httputil.RespondWithJSON(w, http.StatusOK, HealthResponse{Status: "ready"})
}
