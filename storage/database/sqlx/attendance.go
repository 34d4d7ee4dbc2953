package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/student"
)

type (
	attendanceRow struct {
		ID          int    `db:"id"`
		EventDateID int    `db:"event_date_id"`
		StudentID   string `db:"student_id_number"`
		BlockID     int    `db:"block_id"`
		AmIn        bool   `db:"am_in"`
		AmOut       bool   `db:"am_out"`
		PmIn        bool   `db:"pm_in"`
		PmOut       bool   `db:"pm_out"`
	}

	joinedRow struct {
		StudentID      string    `db:"student_id"`
		FirstName      string    `db:"first_name"`
		MiddleName     string    `db:"middle_name"`
		LastName       string    `db:"last_name"`
		Suffix         string    `db:"suffix"`
		BlockID        int       `db:"block_id"`
		BlockName      string    `db:"block_name"`
		CourseCode     string    `db:"course_code"`
		CourseName     string    `db:"course_name"`
		DepartmentID   int       `db:"department_id"`
		DepartmentCode string    `db:"department_code"`
		DepartmentName string    `db:"department_name"`
		YearLevelID    int       `db:"year_level_id"`
		YearLevelName  string    `db:"year_level_name"`
		EventDateID    int       `db:"event_date_id"`
		Date           time.Time `db:"event_date"`
		SchedAmIn      *string   `db:"sched_am_in"`
		SchedAmOut     *string   `db:"sched_am_out"`
		SchedPmIn      *string   `db:"sched_pm_in"`
		SchedPmOut     *string   `db:"sched_pm_out"`
		AttAmIn        *bool     `db:"att_am_in"`
		AttAmOut       *bool     `db:"att_am_out"`
		AttPmIn        *bool     `db:"att_pm_in"`
		AttPmOut       *bool     `db:"att_pm_out"`
	}
)

func (r attendanceRow) toAttendance() attendance.Attendance {
	return attendance.Attendance{
		ID:          r.ID,
		EventDateID: r.EventDateID,
		StudentID:   r.StudentID,
		BlockID:     r.BlockID,
		AmIn:        r.AmIn,
		AmOut:       r.AmOut,
		PmIn:        r.PmIn,
		PmOut:       r.PmOut,
	}
}

func (r joinedRow) toJoinedRow() attendance.JoinedRow {
	return attendance.JoinedRow{
		StudentID:      r.StudentID,
		FirstName:      r.FirstName,
		MiddleName:     r.MiddleName,
		LastName:       r.LastName,
		Suffix:         r.Suffix,
		BlockID:        r.BlockID,
		BlockName:      r.BlockName,
		CourseCode:     r.CourseCode,
		CourseName:     r.CourseName,
		DepartmentID:   r.DepartmentID,
		DepartmentCode: r.DepartmentCode,
		DepartmentName: r.DepartmentName,
		YearLevelID:    r.YearLevelID,
		YearLevelName:  r.YearLevelName,
		EventDateID:    r.EventDateID,
		Date:           r.Date,
		SchedAmIn:      r.SchedAmIn,
		SchedAmOut:     r.SchedAmOut,
		SchedPmIn:      r.SchedPmIn,
		SchedPmOut:     r.SchedPmOut,
		AttAmIn:        r.AttAmIn,
		AttAmOut:       r.AttAmOut,
		AttPmIn:        r.AttPmIn,
		AttPmOut:       r.AttPmOut,
	}
}

// joinedCols is the projection shared by the block and event summary joins.
var joinedCols = []string{
	"s.id_number AS student_id",
	"s.first_name",
	"s.middle_name",
	"s.last_name",
	"s.suffix",
	"b.id AS block_id",
	"b.name AS block_name",
	"c.code AS course_code",
	"c.name AS course_name",
	"d.id AS department_id",
	"d.code AS department_code",
	"d.name AS department_name",
	"b.year_level_id",
	"yl.name AS year_level_name",
	"ed.id AS event_date_id",
	"ed.event_date",
	"ed.am_in AS sched_am_in",
	"ed.am_out AS sched_am_out",
	"ed.pm_in AS sched_pm_in",
	"ed.pm_out AS sched_pm_out",
	"a.am_in AS att_am_in",
	"a.am_out AS att_am_out",
	"a.pm_in AS att_pm_in",
	"a.pm_out AS att_pm_out",
}

type attendanceRepository struct {
	exec core.DBExecutor
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(exec core.DBExecutor) *attendanceRepository {
	return &attendanceRepository{exec: exec}
}

func (repo attendanceRepository) GetAttendance(ctx context.Context, eventDateID int, studentID string, exec ...core.DBExecutor) (attendance.Attendance, error) {
	var rows []attendanceRow
	qb := psql.Select("id", "event_date_id", "student_id_number", "block_id", "am_in", "am_out", "pm_in", "pm_out").
		From("attendance").
		Where("event_date_id = ?", eventDateID).
		Where("student_id_number = ?", studentID)
	if err := selectAll(ctx, getExec(repo.exec, exec), &rows, qb); err != nil {
		return attendance.Attendance{}, errors.Wrap(err, "getting attendance")
	}
	if len(rows) == 0 {
		return attendance.Attendance{}, attendance.ErrNotFound
	}
	return rows[0].toAttendance(), nil
}

func (repo attendanceRepository) CreateAttendance(ctx context.Context, att attendance.Attendance, exec ...core.DBExecutor) (attendance.Attendance, error) {
	qb := psql.Insert("attendance").
		Columns("event_date_id", "student_id_number", "block_id", "am_in", "am_out", "pm_in", "pm_out").
		Values(att.EventDateID, att.StudentID, att.BlockID, att.AmIn, att.AmOut, att.PmIn, att.PmOut).
		Suffix("RETURNING id")
	id, err := queryIntRow(ctx, getExec(repo.exec, exec), qb)
	if err != nil {
		if isUniqueViolation(err) {
			return attendance.Attendance{}, attendance.ErrAlreadyExists
		}
		return attendance.Attendance{}, errors.Wrap(err, "inserting attendance")
	}
	att.ID = id
	return att, nil
}

func (repo attendanceRepository) UpdateAttendanceSlots(ctx context.Context, rec attendance.SyncRecord, blockID int, exec ...core.DBExecutor) error {
	qb := psql.Update("attendance").
		Set("block_id", blockID).
		Where("event_date_id = ?", rec.EventDateID).
		Where("student_id_number = ?", rec.StudentID)
	if rec.AmIn != nil {
		qb = qb.Set("am_in", *rec.AmIn)
	}
	if rec.AmOut != nil {
		qb = qb.Set("am_out", *rec.AmOut)
	}
	if rec.PmIn != nil {
		qb = qb.Set("pm_in", *rec.PmIn)
	}
	if rec.PmOut != nil {
		qb = qb.Set("pm_out", *rec.PmOut)
	}
	n, err := execAffected(ctx, getExec(repo.exec, exec), qb)
	if err != nil {
		return errors.Wrap(err, "updating attendance")
	}
	if n == 0 {
		return attendance.ErrNotFound
	}
	return nil
}

func (repo attendanceRepository) DeleteAttendanceByEvent(ctx context.Context, eventID int, exec ...core.DBExecutor) (int, error) {
	qb := psql.Delete("attendance").
		Where("event_date_id IN (SELECT id FROM event_dates WHERE event_id = ?)", eventID)
	n, err := execAffected(ctx, getExec(repo.exec, exec), qb)
	if err != nil {
		return 0, errors.Wrap(err, "deleting attendance by event")
	}
	return n, nil
}

func (repo attendanceRepository) CountAttendanceByEvent(ctx context.Context, eventID int, exec ...core.DBExecutor) (int, error) {
	qb := psql.Select("COUNT(*)").
		From("attendance").
		Where("event_date_id IN (SELECT id FROM event_dates WHERE event_id = ?)", eventID)
	n, err := queryIntRow(ctx, getExec(repo.exec, exec), qb)
	if err != nil {
		return 0, errors.Wrap(err, "counting attendance by event")
	}
	return n, nil
}

func (repo attendanceRepository) BackfillAbsences(ctx context.Context, eventIDs []int, exec ...core.DBExecutor) (int, error) {
	if len(eventIDs) == 0 {
		return 0, nil
	}
	const query = `
		INSERT INTO attendance (event_date_id, student_id_number, block_id)
		SELECT ed.id, s.id_number, s.block_id
		FROM event_dates ed
		JOIN event_blocks eb ON eb.event_id = ed.event_id
		JOIN students s ON s.block_id = eb.block_id AND s.status = $2
		WHERE ed.event_id = ANY($1)
		  AND NOT EXISTS (
			SELECT 1 FROM attendance a
			WHERE a.event_date_id = ed.id AND a.student_id_number = s.id_number
		  )`
	res, err := getExec(repo.exec, exec).ExecContext(ctx, query, pq.Array(eventIDs), student.StatusActive)
	if err != nil {
		return 0, errors.Wrap(err, "backfilling absences")
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (repo attendanceRepository) QueryBlockRows(ctx context.Context, eventID, blockID int, exec ...core.DBExecutor) ([]attendance.JoinedRow, error) {
	qb := psql.Select(joinedCols...).
		From("students s").
		Join("blocks b ON b.id = s.block_id").
		Join("courses c ON c.id = b.course_id").
		Join("departments d ON d.id = b.department_id").
		Join("year_levels yl ON yl.id = b.year_level_id").
		Join("event_dates ed ON ed.event_id = ?", eventID).
		LeftJoin("attendance a ON a.student_id_number = s.id_number AND a.event_date_id = ed.id").
		Where("b.id = ?", blockID).
		Where("s.status = ?", student.StatusActive).
		OrderBy("s.id_number", "ed.event_date")
	return repo.queryJoined(ctx, qb, exec)
}

func (repo attendanceRepository) QueryEventRows(ctx context.Context, eventID, departmentID, yearLevelID int, exec ...core.DBExecutor) ([]attendance.JoinedRow, error) {
	qb := psql.Select(joinedCols...).
		From("students s").
		Join("blocks b ON b.id = s.block_id").
		Join("courses c ON c.id = b.course_id").
		Join("departments d ON d.id = b.department_id").
		Join("year_levels yl ON yl.id = b.year_level_id").
		Join("event_blocks eb ON eb.block_id = b.id AND eb.event_id = ?", eventID).
		Join("event_dates ed ON ed.event_id = eb.event_id").
		LeftJoin("attendance a ON a.student_id_number = s.id_number AND a.event_date_id = ed.id").
		Where("s.status = ?", student.StatusActive).
		OrderBy("s.last_name", "s.first_name", "d.code", "b.name")
	if departmentID != 0 {
		qb = qb.Where("d.id = ?", departmentID)
	}
	if yearLevelID != 0 {
		qb = qb.Where("b.year_level_id = ?", yearLevelID)
	}
	return repo.queryJoined(ctx, qb, exec)
}

func (repo attendanceRepository) queryJoined(ctx context.Context, qb sq.SelectBuilder, exec []core.DBExecutor) ([]attendance.JoinedRow, error) {
	var rows []joinedRow
	if err := selectAll(ctx, getExec(repo.exec, exec), &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying attendance rows")
	}
	out := make([]attendance.JoinedRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toJoinedRow())
	}
	return out, nil
}

func (repo attendanceRepository) QueryStudentAttendance(ctx context.Context, studentID string, eventDateIDs []int, exec ...core.DBExecutor) ([]attendance.Attendance, error) {
	if len(eventDateIDs) == 0 {
		return []attendance.Attendance{}, nil
	}
	var rows []attendanceRow
	qb := psql.Select("id", "event_date_id", "student_id_number", "block_id", "am_in", "am_out", "pm_in", "pm_out").
		From("attendance").
		Where("student_id_number = ?", studentID).
		Where(sq.Eq{"event_date_id": eventDateIDs})
	if err := selectAll(ctx, getExec(repo.exec, exec), &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying student attendance")
	}
	out := make([]attendance.Attendance, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toAttendance())
	}
	return out, nil
}
