package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
)

type (
	refRow struct {
		ID     int    `db:"id"`
		Code   string `db:"code"`
		Name   string `db:"name"`
		Status string `db:"status"`
	}

	yearLevelRow struct {
		ID   int    `db:"id"`
		Name string `db:"name"`
	}

	blockRow struct {
		ID             int    `db:"id"`
		Name           string `db:"name"`
		DepartmentID   int    `db:"department_id"`
		CourseID       int    `db:"course_id"`
		YearLevelID    int    `db:"year_level_id"`
		SchoolPeriodID int    `db:"school_period_id"`
		Status         string `db:"status"`
	}
)

func (r blockRow) toBlock() school.Block {
	return school.Block{
		ID:             r.ID,
		Name:           r.Name,
		DepartmentID:   r.DepartmentID,
		CourseID:       r.CourseID,
		YearLevelID:    r.YearLevelID,
		SchoolPeriodID: r.SchoolPeriodID,
		Status:         r.Status,
	}
}

type schoolRepository struct {
	exec core.DBExecutor
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(exec core.DBExecutor) *schoolRepository {
	return &schoolRepository{exec: exec}
}

func (repo schoolRepository) GetDepartmentByCode(ctx context.Context, code string, exec ...core.DBExecutor) (school.Department, error) {
	var rows []refRow
	qb := psql.Select("id", "code", "name", "status").
		From("departments").
		Where("LOWER(code) = ?", core.CleanString(code, true /* lower */))
	if err := selectAll(ctx, getExec(repo.exec, exec), &rows, qb); err != nil {
		return school.Department{}, errors.Wrap(err, "getting department")
	}
	if len(rows) == 0 {
		return school.Department{}, school.ErrDepartmentNotFound
	}
	r := rows[0]
	return school.Department{ID: r.ID, Code: r.Code, Name: r.Name, Status: r.Status}, nil
}

func (repo schoolRepository) GetCourseByCode(ctx context.Context, code string, exec ...core.DBExecutor) (school.Course, error) {
	var rows []refRow
	qb := psql.Select("id", "code", "name", "status").
		From("courses").
		Where("LOWER(code) = ?", core.CleanString(code, true /* lower */))
	if err := selectAll(ctx, getExec(repo.exec, exec), &rows, qb); err != nil {
		return school.Course{}, errors.Wrap(err, "getting course")
	}
	if len(rows) == 0 {
		return school.Course{}, school.ErrCourseNotFound
	}
	r := rows[0]
	return school.Course{ID: r.ID, Code: r.Code, Name: r.Name, Status: r.Status}, nil
}

func (repo schoolRepository) GetYearLevel(ctx context.Context, id int, exec ...core.DBExecutor) (school.YearLevel, error) {
	var rows []yearLevelRow
	qb := psql.Select("id", "name").
		From("year_levels").
		Where("id = ?", id)
	if err := selectAll(ctx, getExec(repo.exec, exec), &rows, qb); err != nil {
		return school.YearLevel{}, errors.Wrap(err, "getting year level")
	}
	if len(rows) == 0 {
		return school.YearLevel{}, school.ErrYearLevelNotFound
	}
	return school.YearLevel{ID: rows[0].ID, Name: rows[0].Name}, nil
}

func (repo schoolRepository) FindBlock(ctx context.Context, key school.BlockKey, periodID int, activeOnly bool, exec ...core.DBExecutor) (school.Block, error) {
	var rows []blockRow
	qb := psql.Select("b.id", "b.name", "b.department_id", "b.course_id", "b.year_level_id", "b.school_period_id", "b.status").
		From("blocks b").
		Join("departments d ON d.id = b.department_id").
		Join("courses c ON c.id = b.course_id").
		Where("b.name = ?", key.Name).
		Where("LOWER(d.code) = ?", key.DepartmentCode).
		Where("LOWER(c.code) = ?", key.CourseCode).
		Where("b.year_level_id = ?", key.YearLevelID).
		Where("b.school_period_id = ?", periodID)
	if activeOnly {
		qb = qb.Where("b.status = ?", school.StatusActive)
	}
	if err := selectAll(ctx, getExec(repo.exec, exec), &rows, qb); err != nil {
		return school.Block{}, errors.Wrap(err, "finding block")
	}
	if len(rows) == 0 {
		return school.Block{}, school.ErrBlockNotFound
	}
	return rows[0].toBlock(), nil
}

func (repo schoolRepository) CreateBlock(ctx context.Context, blk school.Block, exec ...core.DBExecutor) (school.Block, error) {
	qb := psql.Insert("blocks").
		Columns("name", "department_id", "course_id", "year_level_id", "school_period_id", "status").
		Values(blk.Name, blk.DepartmentID, blk.CourseID, blk.YearLevelID, blk.SchoolPeriodID, blk.Status).
		Suffix("RETURNING id")
	id, err := queryIntRow(ctx, getExec(repo.exec, exec), qb)
	if err != nil {
		return school.Block{}, errors.Wrap(err, "inserting block")
	}
	blk.ID = id
	return blk, nil
}

func (repo schoolRepository) ArchiveBlocksByPeriod(ctx context.Context, periodID int, exec ...core.DBExecutor) (int, error) {
	qb := psql.Update("blocks").
		Set("status", school.StatusArchived).
		Where("school_period_id = ?", periodID).
		Where("status = ?", school.StatusActive)
	n, err := execAffected(ctx, getExec(repo.exec, exec), qb)
	if err != nil {
		return 0, errors.Wrap(err, "archiving blocks")
	}
	return n, nil
}
