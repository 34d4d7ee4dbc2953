package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/period"
)

type periodRow struct {
	ID         int    `db:"id"`
	SchoolYear string `db:"school_year"`
	Semester   string `db:"semester"`
	Status     string `db:"status"`
}

func (r periodRow) toPeriod() period.SchoolPeriod {
	return period.SchoolPeriod{ID: r.ID, SchoolYear: r.SchoolYear, Semester: r.Semester, Status: r.Status}
}

type periodRepository struct {
	exec core.DBExecutor
}

var _ period.Repository = (*periodRepository)(nil) // interface compliance check

func NewPeriodRepository(exec core.DBExecutor) *periodRepository {
	return &periodRepository{exec: exec}
}

func (repo periodRepository) GetActivePeriod(ctx context.Context, exec ...core.DBExecutor) (period.SchoolPeriod, error) {
	var rows []periodRow
	qb := psql.Select("id", "school_year", "semester", "status").
		From("school_periods").
		Where("status = ?", period.StatusActive)
	if err := selectAll(ctx, getExec(repo.exec, exec), &rows, qb); err != nil {
		return period.SchoolPeriod{}, errors.Wrap(err, "getting active period")
	}
	if len(rows) == 0 {
		return period.SchoolPeriod{}, period.ErrNoActivePeriod
	}
	return rows[0].toPeriod(), nil
}

func (repo periodRepository) GetPeriod(ctx context.Context, id int, exec ...core.DBExecutor) (period.SchoolPeriod, error) {
	var rows []periodRow
	qb := psql.Select("id", "school_year", "semester", "status").
		From("school_periods").
		Where("id = ?", id)
	if err := selectAll(ctx, getExec(repo.exec, exec), &rows, qb); err != nil {
		return period.SchoolPeriod{}, errors.Wrap(err, "getting period")
	}
	if len(rows) == 0 {
		return period.SchoolPeriod{}, period.ErrNotFound
	}
	return rows[0].toPeriod(), nil
}

func (repo periodRepository) CreatePeriod(ctx context.Context, prd period.SchoolPeriod, exec ...core.DBExecutor) (period.SchoolPeriod, error) {
	qb := psql.Insert("school_periods").
		Columns("school_year", "semester", "status").
		Values(prd.SchoolYear, prd.Semester, prd.Status).
		Suffix("RETURNING id")
	id, err := queryIntRow(ctx, getExec(repo.exec, exec), qb)
	if err != nil {
		if isUniqueViolation(err) {
			return period.SchoolPeriod{}, period.ErrPeriodExists
		}
		return period.SchoolPeriod{}, errors.Wrap(err, "inserting period")
	}
	prd.ID = id
	return prd, nil
}

func (repo periodRepository) ArchivePeriod(ctx context.Context, id int, exec ...core.DBExecutor) error {
	qb := psql.Update("school_periods").
		Set("status", period.StatusArchived).
		Where("id = ?", id)
	n, err := execAffected(ctx, getExec(repo.exec, exec), qb)
	if err != nil {
		return errors.Wrap(err, "archiving period")
	}
	if n == 0 {
		return period.ErrNotFound
	}
	return nil
}
