package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/event"
	"github.com/trezcool/mahudhurio/core/school"
	"github.com/trezcool/mahudhurio/core/student"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

// find must be called with the lock held.
func (repo *attendanceRepository) find(eventDateID int, studentID string) *attendance.Attendance {
	for _, att := range repo.db.attendance {
		if att.EventDateID == eventDateID && att.StudentID == studentID {
			return att
		}
	}
	return nil
}

func (repo *attendanceRepository) GetAttendance(ctx context.Context, eventDateID int, studentID string, exec ...core.DBExecutor) (attendance.Attendance, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if att := repo.find(eventDateID, studentID); att != nil {
		return *att, nil
	}
	return attendance.Attendance{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) CreateAttendance(ctx context.Context, att attendance.Attendance, exec ...core.DBExecutor) (attendance.Attendance, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.find(att.EventDateID, att.StudentID) != nil {
		return attendance.Attendance{}, attendance.ErrAlreadyExists
	}
	att.ID = repo.db.nextID()
	repo.db.attendance[att.ID] = &att
	return att, nil
}

func (repo *attendanceRepository) UpdateAttendanceSlots(ctx context.Context, rec attendance.SyncRecord, blockID int, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	att := repo.find(rec.EventDateID, rec.StudentID)
	if att == nil {
		return attendance.ErrNotFound
	}
	att.BlockID = blockID
	if rec.AmIn != nil {
		att.AmIn = *rec.AmIn
	}
	if rec.AmOut != nil {
		att.AmOut = *rec.AmOut
	}
	if rec.PmIn != nil {
		att.PmIn = *rec.PmIn
	}
	if rec.PmOut != nil {
		att.PmOut = *rec.PmOut
	}
	return nil
}

// eventDateIDs must be called with the lock held.
func (repo *attendanceRepository) eventDateIDs(eventID int) map[int]struct{} {
	ids := make(map[int]struct{})
	for id, d := range repo.db.eventDates {
		if d.EventID == eventID {
			ids[id] = struct{}{}
		}
	}
	return ids
}

func (repo *attendanceRepository) DeleteAttendanceByEvent(ctx context.Context, eventID int, exec ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	dateIDs := repo.eventDateIDs(eventID)
	n := 0
	for id, att := range repo.db.attendance {
		if _, ok := dateIDs[att.EventDateID]; ok {
			delete(repo.db.attendance, id)
			n++
		}
	}
	return n, nil
}

func (repo *attendanceRepository) CountAttendanceByEvent(ctx context.Context, eventID int, exec ...core.DBExecutor) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	dateIDs := repo.eventDateIDs(eventID)
	n := 0
	for _, att := range repo.db.attendance {
		if _, ok := dateIDs[att.EventDateID]; ok {
			n++
		}
	}
	return n, nil
}

func (repo *attendanceRepository) BackfillAbsences(ctx context.Context, eventIDs []int, exec ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n := 0
	for _, eventID := range eventIDs {
		blockIDs := make(map[int]struct{})
		for _, eb := range repo.db.eventBlocks {
			if eb.EventID == eventID {
				blockIDs[eb.BlockID] = struct{}{}
			}
		}
		for dateID, d := range repo.db.eventDates {
			if d.EventID != eventID {
				continue
			}
			for _, std := range repo.db.students {
				if std.Status != student.StatusActive {
					continue
				}
				if _, ok := blockIDs[std.BlockID]; !ok {
					continue
				}
				if repo.find(dateID, std.IDNumber) != nil {
					continue
				}
				att := &attendance.Attendance{
					ID:          repo.db.nextID(),
					EventDateID: dateID,
					StudentID:   std.IDNumber,
					BlockID:     std.BlockID,
				}
				repo.db.attendance[att.ID] = att
				n++
			}
		}
	}
	return n, nil
}

// joinRow must be called with the lock held.
func (repo *attendanceRepository) joinRow(std *student.Student, blk *school.Block, d *event.EventDate) attendance.JoinedRow {
	row := attendance.JoinedRow{
		StudentID:   std.IDNumber,
		FirstName:   std.FirstName,
		MiddleName:  std.MiddleName,
		LastName:    std.LastName,
		Suffix:      std.Suffix,
		BlockID:     blk.ID,
		BlockName:   blk.Name,
		YearLevelID: blk.YearLevelID,
		EventDateID: d.ID,
		Date:        d.Date,
		SchedAmIn:   d.AmIn,
		SchedAmOut:  d.AmOut,
		SchedPmIn:   d.PmIn,
		SchedPmOut:  d.PmOut,
	}
	if crs, ok := repo.db.courses[blk.CourseID]; ok {
		row.CourseCode = crs.Code
		row.CourseName = crs.Name
	}
	if dep, ok := repo.db.departments[blk.DepartmentID]; ok {
		row.DepartmentID = dep.ID
		row.DepartmentCode = dep.Code
		row.DepartmentName = dep.Name
	}
	if yl, ok := repo.db.yearLevels[blk.YearLevelID]; ok {
		row.YearLevelName = yl.Name
	}
	if att := repo.find(d.ID, std.IDNumber); att != nil {
		row.AttAmIn = &att.AmIn
		row.AttAmOut = &att.AmOut
		row.AttPmIn = &att.PmIn
		row.AttPmOut = &att.PmOut
	}
	return row
}

// sortedEventDates must be called with the lock held.
func (repo *attendanceRepository) sortedEventDates(eventID int) []*event.EventDate {
	var dates []*event.EventDate
	for _, d := range repo.db.eventDates {
		if d.EventID == eventID {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Date.Before(dates[j].Date) })
	return dates
}

func (repo *attendanceRepository) QueryBlockRows(ctx context.Context, eventID, blockID int, exec ...core.DBExecutor) ([]attendance.JoinedRow, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	blk, ok := repo.db.blocks[blockID]
	if !ok {
		return []attendance.JoinedRow{}, nil
	}

	var students []*student.Student
	for _, std := range repo.db.students {
		if std.Status == student.StatusActive && std.BlockID == blockID {
			students = append(students, std)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].IDNumber < students[j].IDNumber })

	dates := repo.sortedEventDates(eventID)
	rows := make([]attendance.JoinedRow, 0, len(students)*len(dates))
	for _, std := range students {
		for _, d := range dates {
			rows = append(rows, repo.joinRow(std, blk, d))
		}
	}
	return rows, nil
}

func (repo *attendanceRepository) QueryEventRows(ctx context.Context, eventID, departmentID, yearLevelID int, exec ...core.DBExecutor) ([]attendance.JoinedRow, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	audience := make(map[int]*school.Block)
	for _, eb := range repo.db.eventBlocks {
		if eb.EventID != eventID {
			continue
		}
		blk, ok := repo.db.blocks[eb.BlockID]
		if !ok {
			continue
		}
		if departmentID != 0 && blk.DepartmentID != departmentID {
			continue
		}
		if yearLevelID != 0 && blk.YearLevelID != yearLevelID {
			continue
		}
		audience[blk.ID] = blk
	}

	var students []*student.Student
	for _, std := range repo.db.students {
		if std.Status != student.StatusActive {
			continue
		}
		if _, ok := audience[std.BlockID]; ok {
			students = append(students, std)
		}
	}
	sort.Slice(students, func(i, j int) bool {
		a, b := students[i], students[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		return a.FirstName < b.FirstName
	})

	dates := repo.sortedEventDates(eventID)
	rows := make([]attendance.JoinedRow, 0, len(students)*len(dates))
	for _, std := range students {
		for _, d := range dates {
			rows = append(rows, repo.joinRow(std, audience[std.BlockID], d))
		}
	}
	return rows, nil
}

func (repo *attendanceRepository) QueryStudentAttendance(ctx context.Context, studentID string, eventDateIDs []int, exec ...core.DBExecutor) ([]attendance.Attendance, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	idSet := make(map[int]struct{}, len(eventDateIDs))
	for _, id := range eventDateIDs {
		idSet[id] = struct{}{}
	}
	out := make([]attendance.Attendance, 0)
	for _, att := range repo.db.attendance {
		if att.StudentID != studentID {
			continue
		}
		if _, ok := idSet[att.EventDateID]; ok {
			out = append(out, *att)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventDateID < out[j].EventDateID })
	return out, nil
}
