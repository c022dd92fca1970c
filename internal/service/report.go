package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/cofounder-match/internal/apperror"
	"github.com/sakif/cofounder-match/internal/metrics"
	"github.com/sakif/cofounder-match/internal/model"
	"github.com/sakif/cofounder-match/internal/repository"
)

// ReportService takes user reports and moves them through moderation.
// Reports are never deleted; moderation only advances their status.
type ReportService struct {
	repo    repository.ReportRepository
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewReportService(repo repository.ReportRepository, m *metrics.Metrics, logger *slog.Logger) *ReportService {
	return &ReportService{
		repo:    repo,
		metrics: m,
		logger:  logger,
	}
}

// FileReport records reporterID's complaint about reportedID as pending.
func (s *ReportService) FileReport(ctx context.Context, reporterID, reportedID string, reason model.ReportReason, description string) (*model.Report, error) {
	reporterID = strings.TrimSpace(reporterID)
	reportedID = strings.TrimSpace(reportedID)
	description = strings.TrimSpace(description)

	if reporterID == "" {
		return nil, apperror.ValidationFailed("reporter", "reporter ID is required")
	}
	if reportedID == "" {
		return nil, apperror.ValidationFailed("reported", "reported user ID is required")
	}
	if reporterID == reportedID {
		return nil, apperror.ValidationFailed("reported", "you cannot report yourself")
	}
	if !reason.Valid() {
		return nil, apperror.ValidationFailed("reason", fmt.Sprintf("unknown reason %q", reason))
	}
	if description == "" {
		return nil, apperror.ValidationFailed("description", "description is required")
	}
	if utf8.RuneCountInString(description) > model.MaxReportDescriptionLength {
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", model.MaxReportDescriptionLength))
	}

	r := &model.Report{
		ReporterID:  reporterID,
		ReportedID:  reportedID,
		Reason:      reason,
		Description: description,
		Status:      model.ReportPending,
	}
	if err := s.repo.CreateReport(ctx, r); err != nil {
		s.logger.Error("failed to file report", slog.String("error", err.Error()))
		return nil, fmt.Errorf("filing report: %w", err)
	}

	s.metrics.IncrementReportsFiled(string(reason))
	s.logger.Info("report filed",
		slog.String("id", r.ID),
		slog.String("reason", string(reason)),
	)
	return r, nil
}

// ListReports returns the reports reporterID has filed, newest first.
func (s *ReportService) ListReports(ctx context.Context, reporterID string, limit, offset int) ([]model.Report, error) {
	reporterID = strings.TrimSpace(reporterID)
	if reporterID == "" {
		return nil, apperror.ValidationFailed("reporter", "reporter ID is required")
	}

	reports, err := s.repo.ListReportsByReporter(ctx, reporterID, clampListOptions(limit, offset))
	if err != nil {
		s.logger.Error("failed to list reports", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	return reports, nil
}

// ModerationQueue returns reports in status, oldest first.
func (s *ReportService) ModerationQueue(ctx context.Context, status model.ReportStatus, limit, offset int) ([]model.Report, error) {
	if !status.Valid() {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("unknown status %q", status))
	}

	reports, err := s.repo.ListReportsByStatus(ctx, status, clampListOptions(limit, offset))
	if err != nil {
		s.logger.Error("failed to list moderation queue", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing %s reports: %w", status, err)
	}
	return reports, nil
}

// UpdateStatus advances a report along pending -> reviewed -> resolved.
// Backward moves and moves out of resolved are InvalidTransition errors.
func (s *ReportService) UpdateStatus(ctx context.Context, id string, to model.ReportStatus) (*model.Report, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "report ID is required")
	}
	if !to.Valid() {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("unknown status %q", to))
	}

	current, err := s.repo.GetReport(ctx, id)
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("getting report: %w", err)
	}
	if !current.Status.CanTransitionTo(to) {
		return nil, apperror.InvalidTransition("report", id, string(current.Status), string(to))
	}

	updated, err := s.repo.UpdateReportStatus(ctx, id, current.Status, to)
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		s.logger.Error("failed to update report",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating report: %w", err)
	}

	s.metrics.IncrementReportStatusChange(string(to))
	s.logger.Info("report status changed",
		slog.String("id", id),
		slog.String("from", string(current.Status)),
		slog.String("to", string(to)),
	)
	return updated, nil
}
