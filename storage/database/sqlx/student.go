package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/student"
)

type studentRow struct {
	IDNumber   string        `db:"id_number"`
	FirstName  string        `db:"first_name"`
	MiddleName string        `db:"middle_name"`
	LastName   string        `db:"last_name"`
	Suffix     string        `db:"suffix"`
	Email      string        `db:"email"`
	BlockID    sql.NullInt64 `db:"block_id"`
	Status     string        `db:"status"`
}

func (r studentRow) toStudent() student.Student {
	return student.Student{
		IDNumber:   r.IDNumber,
		FirstName:  r.FirstName,
		MiddleName: r.MiddleName,
		LastName:   r.LastName,
		Suffix:     r.Suffix,
		Email:      r.Email,
		BlockID:    int(r.BlockID.Int64),
		Status:     r.Status,
	}
}

var studentCols = []string{"id_number", "first_name", "middle_name", "last_name", "suffix", "email", "block_id", "status"}

type studentRepository struct {
	exec core.DBExecutor
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(exec core.DBExecutor) *studentRepository {
	return &studentRepository{exec: exec}
}

func (repo studentRepository) getStudent(ctx context.Context, qb sq.SelectBuilder, exec []core.DBExecutor) (student.Student, error) {
	var rows []studentRow
	if err := selectAll(ctx, getExec(repo.exec, exec), &rows, qb); err != nil {
		return student.Student{}, errors.Wrap(err, "getting student")
	}
	if len(rows) == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return rows[0].toStudent(), nil
}

func (repo studentRepository) GetStudent(ctx context.Context, idNumber string, exec ...core.DBExecutor) (student.Student, error) {
	qb := psql.Select(studentCols...).
		From("students").
		Where("id_number = ?", idNumber)
	return repo.getStudent(ctx, qb, exec)
}

func (repo studentRepository) GetActiveStudent(ctx context.Context, idNumber string, exec ...core.DBExecutor) (student.Student, error) {
	qb := psql.Select(studentCols...).
		From("students").
		Where("id_number = ?", idNumber).
		Where("status = ?", student.StatusActive)
	return repo.getStudent(ctx, qb, exec)
}

func (repo studentRepository) CreateStudent(ctx context.Context, std student.Student, exec ...core.DBExecutor) (student.Student, error) {
	qb := psql.Insert("students").
		Columns(studentCols...).
		Values(std.IDNumber, std.FirstName, std.MiddleName, std.LastName, std.Suffix, std.Email, nullableID(std.BlockID), std.Status)
	query, args, err := qb.ToSql()
	if err != nil {
		return student.Student{}, errors.Wrap(err, "building query")
	}
	if _, err = getExec(repo.exec, exec).ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return student.Student{}, core.NewConflictError("a student with this id number already exists")
		}
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return std, nil
}

func (repo studentRepository) UpdateStudent(ctx context.Context, std student.Student, exec ...core.DBExecutor) error {
	qb := psql.Update("students").
		Set("first_name", std.FirstName).
		Set("middle_name", std.MiddleName).
		Set("last_name", std.LastName).
		Set("suffix", std.Suffix).
		Set("email", std.Email).
		Set("block_id", nullableID(std.BlockID)).
		Set("status", std.Status).
		Where("id_number = ?", std.IDNumber)
	n, err := execAffected(ctx, getExec(repo.exec, exec), qb)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	if n == 0 {
		return student.ErrNotFound
	}
	return nil
}

func (repo studentRepository) DisableAbsentStudents(ctx context.Context, seen []string, exec ...core.DBExecutor) (int, error) {
	qb := psql.Update("students").
		Set("status", student.StatusDisabled).
		Where("status = ?", student.StatusActive).
		Where(sq.NotEq{"id_number": seen})
	n, err := execAffected(ctx, getExec(repo.exec, exec), qb)
	if err != nil {
		return 0, errors.Wrap(err, "disabling absent students")
	}
	return n, nil
}

func (repo studentRepository) QueryActiveStudentsByPeriod(ctx context.Context, periodID int, exec ...core.DBExecutor) ([]student.Student, error) {
	var rows []studentRow
	qb := psql.Select(
		"s.id_number", "s.first_name", "s.middle_name", "s.last_name",
		"s.suffix", "s.email", "s.block_id", "s.status",
	).
		From("students s").
		Join("blocks b ON b.id = s.block_id").
		Where("b.school_period_id = ?", periodID).
		Where("s.status = ?", student.StatusActive)
	if err := selectAll(ctx, getExec(repo.exec, exec), &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying students by period")
	}
	students := make([]student.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.toStudent())
	}
	return students, nil
}

// nullableID maps zero ids to SQL NULL.
func nullableID(id int) interface{} {
	if id == 0 {
		return nil
	}
	return id
}
