package student

import (
	"context"
	"strings"

	"github.com/trezcool/mahudhurio/core"
)

// Student lifecycle statuses.
//
// NotEnrolled: self-signed up before any roster mentioned them.
// Unregistered: appeared on a roster but has not self-registered yet.
// Active: registered and present on the newest roster.
// Disabled: absent from the newest roster.
const (
	StatusNotEnrolled  = "NotEnrolled"
	StatusUnregistered = "Unregistered"
	StatusActive       = "Active"
	StatusDisabled     = "Disabled"
)

var ErrNotFound = core.NewNotFoundError("student not found")

type (
	// Student's IDNumber is the stable natural key; it never changes across
	// school periods. BlockID always points at the current period's block.
	Student struct {
		IDNumber   string `json:"id_number"`
		FirstName  string `json:"first_name"`
		MiddleName string `json:"middle_name,omitempty"`
		LastName   string `json:"last_name"`
		Suffix     string `json:"suffix,omitempty"`
		Email      string `json:"email,omitempty"`
		BlockID    int    `json:"block_id"`
		Status     string `json:"status"`
	}

	Repository interface {
		GetStudent(ctx context.Context, idNumber string, exec ...core.DBExecutor) (Student, error)
		// GetActiveStudent returns ErrNotFound for missing and non-Active students alike.
		GetActiveStudent(ctx context.Context, idNumber string, exec ...core.DBExecutor) (Student, error)
		CreateStudent(ctx context.Context, std Student, exec ...core.DBExecutor) (Student, error)
		// UpdateStudent replaces the identity fields, block and status of the
		// student identified by std.IDNumber.
		UpdateStudent(ctx context.Context, std Student, exec ...core.DBExecutor) error
		// DisableAbsentStudents flips every Active student whose id number is
		// not in seen to Disabled, returning how many were disabled.
		DisableAbsentStudents(ctx context.Context, seen []string, exec ...core.DBExecutor) (int, error)
		// QueryActiveStudentsByPeriod lists Active students whose current
		// block belongs to the given school period.
		QueryActiveStudentsByPeriod(ctx context.Context, periodID int, exec ...core.DBExecutor) ([]Student, error)
	}
)

// DisplayName renders "Last, First M. Suffix" the way rosters and summaries
// print students.
func (s Student) DisplayName() string {
	var b strings.Builder
	b.WriteString(s.LastName)
	b.WriteString(", ")
	b.WriteString(s.FirstName)
	if s.MiddleName != "" {
		b.WriteString(" ")
		b.WriteString(s.MiddleName[:1])
		b.WriteString(".")
	}
	if s.Suffix != "" {
		b.WriteString(" ")
		b.WriteString(s.Suffix)
	}
	return b.String()
}
