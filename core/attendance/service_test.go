package attendance_test

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mahudhurio/core/admin"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/event"
	"github.com/trezcool/mahudhurio/core/period"
	"github.com/trezcool/mahudhurio/core/school"
	"github.com/trezcool/mahudhurio/core/student"
	broadcastsvc "github.com/trezcool/mahudhurio/services/broadcast"
	logsvc "github.com/trezcool/mahudhurio/services/logger"
	dummydb "github.com/trezcool/mahudhurio/storage/database/dummy"
)

type fixtures struct {
	block school.Block
	ev    event.EventDetail
	dates []event.EventDate
	stdA  student.Student // attends
	stdB  student.Student // never scans
}

// setup plants an approved two-day event scheduled for am_in and pm_in,
// with two active students in its audience block.
func setup(t *testing.T, eventDates ...string) (*attendance.Service, *dummydb.DB, fixtures) {
	t.Helper()
	if len(eventDates) == 0 {
		eventDates = []string{"2026-09-10", "2026-09-11"}
	}

	db, err := dummydb.Open()
	require.NoError(t, err)
	logger := logsvc.NewConsoleLogger(log.New(io.Discard, "", 0))
	ctx := context.Background()

	prd, err := dummydb.NewPeriodRepository(db).CreatePeriod(ctx, period.SchoolPeriod{
		SchoolYear: "2026-2027",
		Semester:   period.SemesterFirst,
		Status:     period.StatusActive,
	})
	require.NoError(t, err)

	dept := db.SeedDepartment(school.Department{Code: "CCS", Name: "College of Computer Studies"})
	crs := db.SeedCourse(school.Course{Code: "BSIT", Name: "BS Information Technology"})
	yl := db.SeedYearLevel(school.YearLevel{Name: "1st Year"})

	fix := fixtures{}
	fix.block, err = dummydb.NewSchoolRepository(db).CreateBlock(ctx, school.Block{
		Name:           "BSIT 1A",
		DepartmentID:   dept.ID,
		CourseID:       crs.ID,
		YearLevelID:    yl.ID,
		SchoolPeriodID: prd.ID,
		Status:         school.StatusActive,
	})
	require.NoError(t, err)

	students := dummydb.NewStudentRepository(db)
	fix.stdA, err = students.CreateStudent(ctx, student.Student{
		IDNumber: "S-100", FirstName: "Thandi", LastName: "Phiri",
		BlockID: fix.block.ID, Status: student.StatusActive,
	})
	require.NoError(t, err)
	fix.stdB, err = students.CreateStudent(ctx, student.Student{
		IDNumber: "S-101", FirstName: "Kondwani", MiddleName: "M", LastName: "Zulu",
		BlockID: fix.block.ID, Status: student.StatusActive,
	})
	require.NoError(t, err)

	name := db.SeedEventName(event.EventName{Name: "Intramurals"})
	adm := db.SeedAdmin(admin.Admin{IDNumber: "A-002", FirstName: "Sam", LastName: "Banda", RoleID: admin.RoleSuperAdmin})

	eventRepo := dummydb.NewEventRepository(db)
	evSvc := event.NewService(
		db, eventRepo,
		dummydb.NewAdminRepository(db),
		dummydb.NewPeriodRepository(db),
		dummydb.NewAttendanceRepository(db),
		broadcastsvc.NewRecorder(),
		logger,
	)
	amIn, pmIn := "08:00:00", "13:00:00"
	fix.ev, err = evSvc.Create(ctx, event.EventInput{
		EventNameID: name.ID,
		Venue:       "Gymnasium",
		Dates:       eventDates,
		BlockIDs:    []int{fix.block.ID},
		AmIn:        &amIn,
		PmIn:        &pmIn,
		ActorID:     adm.IDNumber,
	})
	require.NoError(t, err)
	fix.dates, err = eventRepo.GetEventDates(ctx, fix.ev.ID)
	require.NoError(t, err)

	svc := attendance.NewService(dummydb.NewAttendanceRepository(db), eventRepo, students, logger)
	return svc, db, fix
}

func boolPtr(b bool) *bool { return &b }

func TestService_Sync(t *testing.T) {
	svc, db, fix := setup(t)
	ctx := context.Background()
	dateID := fix.dates[0].ID

	res, err := svc.Sync(ctx, []attendance.SyncRecord{
		{EventDateID: dateID, StudentID: fix.stdA.IDNumber, AmIn: boolPtr(true)},
	})
	require.NoError(t, err)
	require.Len(t, res.Synced, 1)
	assert.Empty(t, res.Failed)
	assert.Equal(t, attendance.ActionInserted, res.Synced[0].Action)
	assert.Equal(t, fix.block.ID, res.Synced[0].BlockID)

	// a second kiosk reports the afternoon scan of the same day
	res, err = svc.Sync(ctx, []attendance.SyncRecord{
		{EventDateID: dateID, StudentID: fix.stdA.IDNumber, PmIn: boolPtr(true)},
	})
	require.NoError(t, err)
	require.Len(t, res.Synced, 1)
	assert.Equal(t, attendance.ActionUpdated, res.Synced[0].Action)

	// the morning scan survived the partial update
	att, err := dummydb.NewAttendanceRepository(db).GetAttendance(ctx, dateID, fix.stdA.IDNumber)
	require.NoError(t, err)
	assert.True(t, att.AmIn)
	assert.True(t, att.PmIn)
	assert.False(t, att.AmOut)
}

func TestService_Sync_failureIsolation(t *testing.T) {
	svc, db, fix := setup(t)
	ctx := context.Background()
	dateID := fix.dates[0].ID

	// disable stdB so their scan is rejected
	stdB := fix.stdB
	stdB.Status = student.StatusDisabled
	require.NoError(t, dummydb.NewStudentRepository(db).UpdateStudent(ctx, stdB))

	res, err := svc.Sync(ctx, []attendance.SyncRecord{
		{EventDateID: dateID, StudentID: ""},                                         // missing fields
		{EventDateID: dateID, StudentID: "S-999", AmIn: boolPtr(true)},               // unknown student
		{EventDateID: dateID, StudentID: stdB.IDNumber, AmIn: boolPtr(true)},         // inactive student
		{EventDateID: 424242, StudentID: fix.stdA.IDNumber, AmIn: boolPtr(true)},     // unknown date
		{EventDateID: dateID, StudentID: fix.stdA.IDNumber, AmIn: boolPtr(true)},     // fine
	})
	require.NoError(t, err)
	assert.Len(t, res.Synced, 1)
	require.Len(t, res.Failed, 4)
	assert.Contains(t, res.Failed[0].Error, "missing required fields")
	assert.Equal(t, "student not found or not active", res.Failed[1].Error)
	assert.Equal(t, "student not found or not active", res.Failed[2].Error)
	assert.Equal(t, "event date not found", res.Failed[3].Error)
}

func TestService_BlockSummary_unknownEvent(t *testing.T) {
	svc, _, fix := setup(t)

	_, err := svc.BlockSummary(context.Background(), 424242, fix.block.ID, attendance.FilterAll)
	assert.ErrorIs(t, err, event.ErrNotFound)
}

func TestService_BlockSummary(t *testing.T) {
	svc, _, fix := setup(t)
	ctx := context.Background()

	// stdA attends the morning of day one only
	_, err := svc.Sync(ctx, []attendance.SyncRecord{
		{EventDateID: fix.dates[0].ID, StudentID: fix.stdA.IDNumber, AmIn: boolPtr(true)},
	})
	require.NoError(t, err)

	sum, err := svc.BlockSummary(ctx, fix.ev.ID, fix.block.ID, attendance.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, "2026-09-10", sum.FirstEventDate)
	assert.Equal(t, "2026-09-11", sum.LastEventDate)
	assert.Equal(t, attendance.SlotMask{AmIn: true, PmIn: true}, sum.Slots)
	require.Len(t, sum.Students, 2)

	var a, b attendance.StudentBlockSummary
	for _, s := range sum.Students {
		switch s.StudentID {
		case fix.stdA.IDNumber:
			a = s
		case fix.stdB.IDNumber:
			b = s
		}
	}

	// 2 dates x 2 scheduled slots = 4 sessions each
	assert.Equal(t, 1, a.PresentCount)
	assert.Equal(t, 3, a.AbsentCount)
	assert.Equal(t, 4, a.TotalSessions)
	require.NotNil(t, a.AmInAttended)
	assert.Equal(t, 1, *a.AmInAttended)
	assert.Equal(t, 2, *a.AmInTotal)
	assert.Equal(t, 0, *a.PmInAttended)
	// pm_out is not scheduled: its counters are absent entirely
	assert.Nil(t, a.PmOutAttended)

	require.Len(t, a.Details, 2)
	day1 := a.Details[0]
	assert.Equal(t, 2, day1.SessionsRequired)
	assert.Equal(t, 1, day1.SessionsAttended)
	require.NotNil(t, day1.AmIn)
	assert.Equal(t, "2026-09-10T08:00:00", *day1.AmIn)
	require.NotNil(t, day1.AmInAttended)
	assert.True(t, *day1.AmInAttended)
	assert.Nil(t, day1.PmIn, "missed slots carry no timestamp")

	assert.Equal(t, 0, b.PresentCount)
	assert.Equal(t, 4, b.AbsentCount)

	// filters
	present, err := svc.BlockSummary(ctx, fix.ev.ID, fix.block.ID, attendance.FilterPresent)
	require.NoError(t, err)
	require.Len(t, present.Students, 1)
	assert.Equal(t, fix.stdA.IDNumber, present.Students[0].StudentID)

	absent, err := svc.BlockSummary(ctx, fix.ev.ID, fix.block.ID, attendance.FilterAbsent)
	require.NoError(t, err)
	assert.Len(t, absent.Students, 2, "both students missed at least one session")
}

func TestService_EventSummary(t *testing.T) {
	svc, _, fix := setup(t)
	ctx := context.Background()

	_, err := svc.Sync(ctx, []attendance.SyncRecord{
		{EventDateID: fix.dates[0].ID, StudentID: fix.stdA.IDNumber, AmIn: boolPtr(true), PmIn: boolPtr(true)},
	})
	require.NoError(t, err)

	sum, err := svc.EventSummary(ctx, fix.ev.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "Intramurals", sum.EventName)
	require.Len(t, sum.Students, 2)

	// sorted by last name: Phiri before Zulu
	assert.Equal(t, fix.stdA.IDNumber, sum.Students[0].IDNumber)
	assert.Equal(t, fix.stdB.IDNumber, sum.Students[1].IDNumber)
	assert.Equal(t, 2, sum.Students[0].PresentCount)
	assert.Equal(t, 2, sum.Students[0].AbsentCount)
	assert.Equal(t, 4, sum.Students[0].TotalSessions)
	assert.Equal(t, "BSIT 1A", sum.Students[0].BlockName)

	require.Len(t, sum.Departments, 1)
	assert.Equal(t, "CCS", sum.Departments[0].Code)
	require.Len(t, sum.YearLevels, 1)
	assert.Equal(t, "1st Year", sum.YearLevels[0].Name)
	require.Len(t, sum.Blocks, 1)

	// a department filter that matches nothing empties the audience
	filtered, err := svc.EventSummary(ctx, fix.ev.ID, 424242, 0)
	require.NoError(t, err)
	assert.Empty(t, filtered.Students)
}

func TestService_StudentSummary(t *testing.T) {
	svc, _, fix := setup(t)
	ctx := context.Background()

	_, err := svc.Sync(ctx, []attendance.SyncRecord{
		{EventDateID: fix.dates[0].ID, StudentID: fix.stdA.IDNumber, AmIn: boolPtr(true)},
	})
	require.NoError(t, err)

	sum, err := svc.StudentSummary(ctx, fix.ev.ID, fix.stdA.IDNumber)
	require.NoError(t, err)
	assert.Equal(t, "Intramurals", sum.EventName)
	assert.Equal(t, "Phiri, Thandi", sum.StudentName)
	require.Len(t, sum.Days, 2)

	day1 := sum.Days["2026-09-10"]
	require.NotNil(t, day1)
	assert.Equal(t, 1, day1.PresentCount)
	assert.Equal(t, 1, day1.AbsentCount)
	assert.Equal(t, 2, day1.TotalCount)

	day2 := sum.Days["2026-09-11"]
	require.NotNil(t, day2)
	assert.Equal(t, 0, day2.PresentCount)
	assert.Equal(t, 2, day2.AbsentCount)

	_, err = svc.StudentSummary(ctx, fix.ev.ID, "S-999")
	assert.ErrorIs(t, err, student.ErrNotFound)
}

func TestService_StudentSchedule(t *testing.T) {
	today := time.Now().UTC()
	tomorrow := today.AddDate(0, 0, 1)
	svc, _, fix := setup(t, today.Format(event.DateLayout), tomorrow.Format(event.DateLayout))
	ctx := context.Background()

	_, err := svc.Sync(ctx, []attendance.SyncRecord{
		{EventDateID: fix.dates[0].ID, StudentID: fix.stdA.IDNumber, AmIn: boolPtr(true)},
	})
	require.NoError(t, err)

	entries, err := svc.StudentSchedule(ctx, fix.stdA.IDNumber, today)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, fix.ev.ID, entry.EventID)
	assert.Equal(t, "Intramurals", entry.EventName)
	require.Len(t, entry.Attendance, 2)

	flags := entry.Attendance[today.Format(event.DateLayout)]
	assert.True(t, flags.AmIn)
	assert.False(t, flags.PmIn)
	// no scan yet tomorrow: zero-value flags
	assert.Equal(t, attendance.SlotFlags{}, entry.Attendance[tomorrow.Format(event.DateLayout)])

	// an event outside its date span does not show up
	past, err := svc.StudentSchedule(ctx, fix.stdA.IDNumber, today.AddDate(0, -2, 0))
	require.NoError(t, err)
	assert.Empty(t, past)
}
