package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edupanel/student-records-api/internal/importer"
	"github.com/edupanel/student-records-api/internal/models"
	appErrors "github.com/edupanel/student-records-api/pkg/errors"
)

type importBatcher interface {
	ImportBatch(ctx context.Context, rows []models.ImportRow) (int, []string, error)
}

// ImportService turns external rosters (CSV files, extracted document text,
// pre-parsed draft lists) into committed student records. Each batch runs as
// a single transaction with one resequence and one activity entry.
type ImportService struct {
	repo       importBatcher
	normalizer importer.Normalizer
	activity   activityRecorder
	dashboard  dashboardInvalidator
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewImportService constructs the import service.
func NewImportService(repo importBatcher, normalizer importer.Normalizer, activity activityRecorder, dashboard dashboardInvalidator, metrics *MetricsService, logger *zap.Logger) *ImportService {
	if normalizer == nil {
		normalizer = importer.NewTextNormalizer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{repo: repo, normalizer: normalizer, activity: activity, dashboard: dashboard, metrics: metrics, logger: logger}
}

// ImportCSV parses and commits a CSV roster. A missing required column fails
// the whole file before any row is processed; individual bad rows are skipped
// and reported by line number.
func (s *ImportService) ImportCSV(ctx context.Context, actor Actor, file io.Reader) (*models.ImportReport, error) {
	parsed, err := importer.ParseCSV(file)
	if err != nil {
		return &models.ImportReport{Success: false, Message: err.Error()}, nil
	}

	rows := draftsToRows(parsed.Drafts)
	report, err := s.commit(ctx, rows, parsed.RowErrors)
	if err != nil {
		return nil, err
	}
	report.Message = fmt.Sprintf("Import completed: %d students added, %d errors", report.SuccessCount, report.ErrorCount)

	s.metrics.RecordImport("csv", report.SuccessCount, report.ErrorCount)
	s.activity.Record(ctx, actor, models.ActionBulkImport, models.EntityStudent, nil,
		fmt.Sprintf("Bulk imported %d students via CSV", report.SuccessCount))
	s.dashboard.InvalidateDashboard(ctx)
	return report, nil
}

// ImportText runs the extraction heuristic over raw document text and commits
// whatever drafts it yields. Text with no recognizable records fails with a
// single message rather than a per-row breakdown, since the heuristic discards
// unusable blocks silently.
func (s *ImportService) ImportText(ctx context.Context, actor Actor, text string) (*models.ImportReport, error) {
	drafts := s.normalizer.Normalize(text)
	return s.importDrafts(ctx, actor, drafts, "PDF")
}

// ImportDrafts commits a client-supplied draft list (the JSON bulk endpoint).
func (s *ImportService) ImportDrafts(ctx context.Context, actor Actor, drafts []importer.Draft) (*models.ImportReport, error) {
	return s.importDrafts(ctx, actor, drafts, "JSON")
}

func (s *ImportService) importDrafts(ctx context.Context, actor Actor, drafts []importer.Draft, source string) (*models.ImportReport, error) {
	usable := make([]importer.Draft, 0, len(drafts))
	for _, d := range drafts {
		// The upsert keys on email, so drafts without one cannot be
		// stored. Name-less drafts are noise from the extractor.
		if d.Name == "" || d.Email == "" {
			continue
		}
		usable = append(usable, d)
	}
	if len(usable) == 0 {
		return &models.ImportReport{Success: false, Message: "No valid student data found"}, nil
	}

	report, err := s.commit(ctx, draftsToRows(usable), nil)
	if err != nil {
		return nil, err
	}
	report.Message = fmt.Sprintf("Import completed: %d students added, %d errors", report.SuccessCount, report.ErrorCount)

	s.metrics.RecordImport(strings.ToLower(source), report.SuccessCount, report.ErrorCount)
	s.activity.Record(ctx, actor, models.ActionBulkImport, models.EntityStudent, nil,
		fmt.Sprintf("Bulk imported %d students via %s", report.SuccessCount, source))
	s.dashboard.InvalidateDashboard(ctx)
	return report, nil
}

func (s *ImportService) commit(ctx context.Context, rows []models.ImportRow, priorErrors []string) (*models.ImportReport, error) {
	successCount := 0
	var rowErrors []string
	if len(rows) > 0 {
		var err error
		successCount, rowErrors, err = s.repo.ImportBatch(ctx, rows)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to import students")
		}
	}

	allErrors := append(append([]string{}, priorErrors...), rowErrors...)
	return &models.ImportReport{
		Success:      true,
		SuccessCount: successCount,
		ErrorCount:   len(allErrors),
		Errors:       allErrors,
	}, nil
}

// draftsToRows shapes validated drafts into storable rows, filling the
// defaults the extraction paths leave open: enrollment date falls back to
// today, course to "General". Draft dates are trusted here; the CSV validator
// has already rejected malformed ones and the text extractor drops them.
func draftsToRows(drafts []importer.Draft) []models.ImportRow {
	rows := make([]models.ImportRow, 0, len(drafts))
	for _, d := range drafts {
		enrollmentDate := time.Now().UTC().Truncate(24 * time.Hour)
		if d.EnrollmentDate != "" {
			if parsed, err := time.Parse("2006-01-02", d.EnrollmentDate); err == nil {
				enrollmentDate = parsed
			}
		}
		course := d.Course
		if course == "" {
			course = "General"
		}
		rows = append(rows, models.ImportRow{
			Line: d.Line,
			Student: models.Student{
				StudentID:      d.StudentID,
				Name:           d.Name,
				Email:          d.Email,
				Phone:          d.Phone,
				Course:         course,
				EnrollmentDate: enrollmentDate,
			},
		})
	}
	return rows
}
