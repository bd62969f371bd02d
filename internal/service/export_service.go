package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/edupanel/student-records-api/internal/models"
	"github.com/edupanel/student-records-api/pkg/export"
	appErrors "github.com/edupanel/student-records-api/pkg/errors"
)

var rosterHeaders = []string{"student_id", "name", "email", "phone", "course", "enrollment_date"}

var templateRows = [][]string{
	{"STD101", "John Doe", "john.doe@example.com", "+1234567890", "Computer Science", "2024-01-15"},
	{"STD102", "Jane Smith", "jane.smith@example.com", "+0987654321", "Engineering", "2024-01-16"},
	{"STD103", "Bob Johnson", "bob.johnson@example.com", "+1122334455", "Mathematics", "2024-01-17"},
}

type exportStudentLister interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportService renders the roster and the import template as downloads.
type ExportService struct {
	students exportStudentLister
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(students exportStudentLister, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{students: students, csv: csv, pdf: pdf, logger: logger}
}

// Template returns the sample import CSV. Its header row matches the columns
// the CSV importer requires.
func (s *ExportService) Template() ([]byte, error) {
	dataset := export.Dataset{Headers: rosterHeaders}
	for _, row := range templateRows {
		dataset.Rows = append(dataset.Rows, rowMap(row))
	}
	data, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render template")
	}
	return data, nil
}

// RosterCSV renders the filtered roster as CSV.
func (s *ExportService) RosterCSV(ctx context.Context, filter models.StudentFilter) ([]byte, error) {
	dataset, err := s.rosterDataset(ctx, filter)
	if err != nil {
		return nil, err
	}
	data, err := s.csv.Render(*dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster csv")
	}
	return data, nil
}

// RosterPDF renders the filtered roster as a tabular PDF.
func (s *ExportService) RosterPDF(ctx context.Context, filter models.StudentFilter) ([]byte, error) {
	dataset, err := s.rosterDataset(ctx, filter)
	if err != nil {
		return nil, err
	}
	data, err := s.pdf.Render(*dataset, "Student Records")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster pdf")
	}
	return data, nil
}

func (s *ExportService) rosterDataset(ctx context.Context, filter models.StudentFilter) (*export.Dataset, error) {
	students, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	dataset := &export.Dataset{Headers: rosterHeaders}
	for _, st := range students {
		dataset.Rows = append(dataset.Rows, rowMap([]string{
			st.StudentID,
			st.Name,
			st.Email,
			st.Phone,
			st.Course,
			st.EnrollmentDate.Format("2006-01-02"),
		}))
	}
	return dataset, nil
}

func rowMap(values []string) map[string]string {
	row := make(map[string]string, len(rosterHeaders))
	for i, h := range rosterHeaders {
		row[h] = values[i]
	}
	return row
}
