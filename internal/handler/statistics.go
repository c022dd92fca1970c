package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/cofounder-match/internal/service"
)

type StatisticsHandler struct {
	statistics *service.StatisticsService
	logger     *slog.Logger
}

func NewStatisticsHandler(statistics *service.StatisticsService, logger *slog.Logger) *StatisticsHandler {
	return &StatisticsHandler{statistics: statistics, logger: logger}
}

// HandleGet recomputes and returns the platform statistics. Public.
//
// HTTP: GET /api/statistics
//
// If the recompute fails the last stored snapshot is served instead, so the
// homepage keeps working while the member store is unavailable.
func (h *StatisticsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := h.statistics.Refresh(r.Context())
	if err != nil {
		h.logger.Warn("statistics refresh failed, serving stored snapshot", slog.String("error", err.Error()))
		snap, err = h.statistics.GetSnapshot(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, snap)
}

// Pinger is implemented by the storage layer.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports whether the process and its database are up.
//
// HTTP: GET /healthz
func HealthHandler(db Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			logger.Error("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
