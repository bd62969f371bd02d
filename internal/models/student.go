package models

import (
	"fmt"
	"time"
)

// StudentIDPrefix is the prefix of every displayed student identifier.
const StudentIDPrefix = "STD"

// Student represents a student record stored in the students table.
// ID is the stable internal key; StudentID is the displayed identifier and is
// rewritten to the record's 1-based rank (by ID ascending) after every
// mutation.
type Student struct {
	ID             int64     `db:"id" json:"id"`
	StudentID      string    `db:"student_id" json:"student_id"`
	Name           string    `db:"name" json:"name"`
	Email          string    `db:"email" json:"email"`
	Phone          string    `db:"phone" json:"phone"`
	Course         string    `db:"course" json:"course"`
	EnrollmentDate time.Time `db:"enrollment_date" json:"enrollment_date"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// FormatStudentID renders the displayed identifier for a 1-based rank.
func FormatStudentID(rank int) string {
	return fmt.Sprintf("%s%03d", StudentIDPrefix, rank)
}

// StudentFilter captures filtering criteria for listing students.
type StudentFilter struct {
	Course string
	Search string
}

// CourseCount is one slice of the per-course distribution.
type CourseCount struct {
	Course string `db:"course" json:"course"`
	Count  int    `db:"count" json:"count"`
}

// ImportRow is a validated record ready for upsert, carrying its 1-based
// source line for error reporting (0 when the source has no line numbers).
type ImportRow struct {
	Student Student
	Line    int
}

// ImportReport summarises the outcome of a bulk import.
type ImportReport struct {
	Success      bool     `json:"success"`
	Message      string   `json:"message"`
	SuccessCount int      `json:"successCount"`
	ErrorCount   int      `json:"errorCount"`
	Errors       []string `json:"errors"`
}
