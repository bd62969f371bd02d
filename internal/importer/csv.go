package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
)

// CSVResult holds the outcome of parsing a CSV import file. Drafts contains
// only rows that passed validation; RowErrors holds one line-numbered message
// per rejected row.
type CSVResult struct {
	Drafts    []Draft
	RowErrors []string
}

// ParseCSV reads a CSV stream with a header row and returns validated drafts.
// Header matching is case-insensitive and tolerant of spaces and dashes. A
// missing required column rejects the whole file (returned as an error, zero
// rows processed); individual bad rows are recorded in RowErrors and skipped.
func ParseCSV(r io.Reader) (*CSVResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("CSV file is empty or invalid")
	}

	columnMap, missing := mapColumns(header)
	if len(missing) > 0 {
		return nil, fmt.Errorf("Missing required columns: %s. Your CSV has: %s",
			strings.Join(missing, ", "), strings.Join(header, ", "))
	}

	result := &CSVResult{}
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.RowErrors = append(result.RowErrors, fmt.Sprintf("Line %d: unreadable row", line))
			continue
		}
		if blankRow(row) {
			continue
		}

		draft := Draft{Line: line}
		draft.StudentID = cell(row, columnMap["student_id"])
		draft.Name = cell(row, columnMap["name"])
		draft.Email = cell(row, columnMap["email"])
		draft.Phone = cell(row, columnMap["phone"])
		draft.Course = cell(row, columnMap["course"])
		draft.EnrollmentDate = cell(row, columnMap["enrollment_date"])

		if msg := validateDraft(draft); msg != "" {
			result.RowErrors = append(result.RowErrors, msg)
			continue
		}

		draft.Course = CleanCourse(draft.Course)
		result.Drafts = append(result.Drafts, draft)
	}

	return result, nil
}

// mapColumns matches normalized header names against the required column set
// and returns the position of each required column plus any that are absent.
func mapColumns(header []string) (map[string]int, []string) {
	normalized := make([]string, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
		normalized[i] = h
	}

	columnMap := make(map[string]int, len(requiredColumns))
	var missing []string
	for _, col := range requiredColumns {
		pos := -1
		for i, h := range normalized {
			if h == col {
				pos = i
				break
			}
		}
		if pos < 0 {
			missing = append(missing, col)
			continue
		}
		columnMap[col] = pos
	}
	return columnMap, missing
}

func validateDraft(d Draft) string {
	byName := map[string]string{
		"student_id":      d.StudentID,
		"name":            d.Name,
		"email":           d.Email,
		"phone":           d.Phone,
		"course":          d.Course,
		"enrollment_date": d.EnrollmentDate,
	}
	var missing []string
	for _, col := range requiredColumns {
		if byName[col] == "" {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Sprintf("Line %d: Missing fields - %s", d.Line, strings.Join(missing, ", "))
	}

	if !ValidEmail(d.Email) {
		return fmt.Sprintf("Line %d: Invalid email format - %s", d.Line, d.Email)
	}

	// time.Parse rejects non-calendar dates like 2024-02-30, not just
	// shape mismatches.
	if _, err := time.Parse("2006-01-02", d.EnrollmentDate); err != nil {
		return fmt.Sprintf("Line %d: Invalid date format - %s (use YYYY-MM-DD)", d.Line, d.EnrollmentDate)
	}

	return ""
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func cell(row []string, pos int) string {
	if pos < 0 || pos >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[pos])
}
