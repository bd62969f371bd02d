package importer

import (
	"regexp"
	"strings"
)

// Draft is an unvalidated candidate record extracted from an external source
// (CSV cell values or a text-extraction heuristic). Every field is optional
// text; an empty string means the source did not yield the field. Drafts are
// transient: they exist only between extraction and upsert.
type Draft struct {
	StudentID      string `json:"student_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Course         string `json:"course"`
	EnrollmentDate string `json:"enrollment_date"`

	// Line is the 1-based source line the draft came from, 0 when the
	// source has no meaningful line numbers.
	Line int `json:"-"`
}

// Normalizer converts raw extracted document text into candidate drafts.
// Implementations are best-effort: blocks that cannot be shaped into a
// plausible record are discarded, not reported.
type Normalizer interface {
	Normalize(text string) []Draft
}

var (
	emailRe         = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	coursePrefixRe  = regexp.MustCompile(`^[\s+\d\-()]+`)
	requiredColumns = []string{"student_id", "name", "email", "phone", "course", "enrollment_date"}
)

// ValidEmail reports whether s looks like a local@domain address.
func ValidEmail(s string) bool {
	return emailRe.MatchString(s)
}

// CleanCourse strips a leading run of whitespace, digits, '+', '-' and
// parentheses from a course value (guards against a phone-number-like prefix
// spilling into the course cell) and falls back to "General" when nothing
// remains.
func CleanCourse(s string) string {
	cleaned := strings.TrimSpace(coursePrefixRe.ReplaceAllString(s, ""))
	if cleaned == "" {
		return "General"
	}
	return cleaned
}
