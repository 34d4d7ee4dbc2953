package school

import (
	"context"
	"strings"

	"github.com/trezcool/mahudhurio/core"
)

// Reference entity statuses.
const (
	StatusActive   = "Active"
	StatusDisabled = "Disabled"
	StatusArchived = "Archived" // blocks only
)

var (
	// errors
	ErrDepartmentNotFound = core.NewNotFoundError("department not found")
	ErrCourseNotFound     = core.NewNotFoundError("course not found")
	ErrYearLevelNotFound  = core.NewNotFoundError("year level not found")
	ErrBlockNotFound      = core.NewNotFoundError("block not found")
)

type (
	Department struct {
		ID     int    `json:"id"`
		Code   string `json:"code"`
		Name   string `json:"name"`
		Status string `json:"status"`
	}

	Course struct {
		ID     int    `json:"id"`
		Code   string `json:"code"`
		Name   string `json:"name"`
		Status string `json:"status"`
	}

	YearLevel struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	// Block is a cohort of students sharing department, course, year level
	// and enrollment period. A new Block row is created every school period;
	// its identity for roster matching is BlockKey, not the numeric id.
	Block struct {
		ID             int    `json:"id"`
		Name           string `json:"name"`
		DepartmentID   int    `json:"department_id"`
		CourseID       int    `json:"course_id"`
		YearLevelID    int    `json:"year_level_id"`
		SchoolPeriodID int    `json:"school_period_id"`
		Status         string `json:"status"`
	}

	// BlockKey identifies a block across school periods.
	BlockKey struct {
		Name           string
		DepartmentCode string
		CourseCode     string
		YearLevelID    int
	}

	Repository interface {
		GetDepartmentByCode(ctx context.Context, code string, exec ...core.DBExecutor) (Department, error)
		GetCourseByCode(ctx context.Context, code string, exec ...core.DBExecutor) (Course, error)
		GetYearLevel(ctx context.Context, id int, exec ...core.DBExecutor) (YearLevel, error)
		// FindBlock matches by key within one school period; activeOnly
		// additionally requires Block.Status == Active.
		FindBlock(ctx context.Context, key BlockKey, periodID int, activeOnly bool, exec ...core.DBExecutor) (Block, error)
		CreateBlock(ctx context.Context, blk Block, exec ...core.DBExecutor) (Block, error)
		ArchiveBlocksByPeriod(ctx context.Context, periodID int, exec ...core.DBExecutor) (int, error)
	}
)

// NormalizeBlockName folds roster block-name spellings onto one canonical
// form: trimmed, upper-cased, inner whitespace collapsed.
func NormalizeBlockName(name string) string {
	return strings.Join(strings.Fields(strings.ToUpper(name)), " ")
}
