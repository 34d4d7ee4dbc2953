package period

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
)

// Semesters, in rollover order.
const (
	SemesterFirst  = "1st Semester"
	SemesterSecond = "2nd Semester"
)

// Period statuses. Exactly one period is Active at any time.
const (
	StatusActive   = "Active"
	StatusArchived = "Archived"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("school period not found")
	ErrNoActivePeriod = core.NewStateError("no active school period found")
	ErrPeriodExists   = core.NewConflictError("school period already exists")
)

type (
	// SchoolPeriod is one semester of one school year, eg "2024-2025" /
	// "1st Semester".
	SchoolPeriod struct {
		ID         int    `json:"id"`
		SchoolYear string `json:"school_year"`
		Semester   string `json:"semester"`
		Status     string `json:"status"`
	}

	// RosterRow is one student line from the registrar's enrollment feed.
	RosterRow struct {
		IDNumber   string
		FirstName  string
		MiddleName string
		LastName   string
		Suffix     string
		Email      string
		Department string
		Course     string
		YearLevel  int
		Block      string
	}

	// RosterSource iterates an enrollment feed. Next returns io.EOF when
	// the feed is exhausted.
	RosterSource interface {
		Next() (RosterRow, error)
	}

	Repository interface {
		GetActivePeriod(ctx context.Context, exec ...core.DBExecutor) (SchoolPeriod, error)
		GetPeriod(ctx context.Context, id int, exec ...core.DBExecutor) (SchoolPeriod, error)
		CreatePeriod(ctx context.Context, prd SchoolPeriod, exec ...core.DBExecutor) (SchoolPeriod, error)
		ArchivePeriod(ctx context.Context, id int, exec ...core.DBExecutor) error
	}
)

// Next computes the period following prd: the first semester rolls into the
// second within the same school year, the second rolls into the first
// semester of the next year.
func (prd SchoolPeriod) Next() (SchoolPeriod, error) {
	switch prd.Semester {
	case SemesterFirst:
		return SchoolPeriod{SchoolYear: prd.SchoolYear, Semester: SemesterSecond, Status: StatusActive}, nil
	case SemesterSecond:
		yr, err := nextSchoolYear(prd.SchoolYear)
		if err != nil {
			return SchoolPeriod{}, err
		}
		return SchoolPeriod{SchoolYear: yr, Semester: SemesterFirst, Status: StatusActive}, nil
	}
	return SchoolPeriod{}, errors.Errorf("unknown semester %q", prd.Semester)
}

func (prd SchoolPeriod) String() string {
	return prd.SchoolYear + " " + prd.Semester
}

// nextSchoolYear increments a "2024-2025" style range to "2025-2026".
func nextSchoolYear(yr string) (string, error) {
	parts := strings.SplitN(yr, "-", 2)
	if len(parts) != 2 {
		return "", errors.Errorf("malformed school year %q", yr)
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", errors.Wrapf(err, "malformed school year %q", yr)
	}
	return fmt.Sprintf("%d-%d", end, end+1), nil
}
