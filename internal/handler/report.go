package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/cofounder-match/internal/auth"
	"github.com/sakif/cofounder-match/internal/model"
	"github.com/sakif/cofounder-match/internal/service"
)

// ReportHandler serves /api/reports. The caller is always the reporter.
type ReportHandler struct {
	reports *service.ReportService
	logger  *slog.Logger
}

func NewReportHandler(reports *service.ReportService, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, logger: logger}
}

type fileReportRequest struct {
	Reported    string             `json:"reported"`
	Reason      model.ReportReason `json:"reason"`
	Description string             `json:"description"`
}

// HandleFile files a report against another user.
//
// HTTP: POST /api/reports
// BODY: {"reported": "...", "reason": "harassment", "description": "..."}
func (h *ReportHandler) HandleFile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	var req fileReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	report, err := h.reports.FileReport(r.Context(), userID, req.Reported, req.Reason, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// HandleList lists the reports the caller has filed, newest first.
//
// HTTP: GET /api/reports?limit=20&offset=0
func (h *ReportHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}

	reports, err := h.reports.ListReports(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}
