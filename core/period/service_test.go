package period_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/admin"
	"github.com/trezcool/mahudhurio/core/event"
	"github.com/trezcool/mahudhurio/core/period"
	"github.com/trezcool/mahudhurio/core/school"
	"github.com/trezcool/mahudhurio/core/student"
	broadcastsvc "github.com/trezcool/mahudhurio/services/broadcast"
	emailsvc "github.com/trezcool/mahudhurio/services/email"
	logsvc "github.com/trezcool/mahudhurio/services/logger"
	dummydb "github.com/trezcool/mahudhurio/storage/database/dummy"
)

const rosterHeader = "id_number,first_name,middle_name,last_name,suffix,email,department,course,year_level,block\n"

type testFixtures struct {
	prd  period.SchoolPeriod
	ylID int
}

func setup(t *testing.T) (*period.Service, *dummydb.DB, testFixtures) {
	t.Helper()
	// SendMessages is fire-and-forget; wait for in-flight sends from
	// previous tests to land before resetting the shared outbox.
	for prev := -1; prev != len(emailsvc.SentMessages); {
		prev = len(emailsvc.SentMessages)
		time.Sleep(20 * time.Millisecond)
	}
	emailsvc.SentMessages = nil

	db, err := dummydb.Open()
	require.NoError(t, err)
	logger := logsvc.NewConsoleLogger(log.New(io.Discard, "", 0))
	mailer := emailsvc.NewConsoleServiceMock(&core.Config{AppName: "Mahudhurio"})

	periodRepo := dummydb.NewPeriodRepository(db)
	svc := period.NewService(
		db,
		periodRepo,
		dummydb.NewSchoolRepository(db),
		dummydb.NewStudentRepository(db),
		dummydb.NewEventRepository(db),
		dummydb.NewAttendanceRepository(db),
		mailer,
		logger,
	)

	prd, err := periodRepo.CreatePeriod(context.Background(), period.SchoolPeriod{
		SchoolYear: "2026-2027",
		Semester:   period.SemesterFirst,
		Status:     period.StatusActive,
	})
	require.NoError(t, err)

	db.SeedDepartment(school.Department{Code: "CCS", Name: "College of Computer Studies"})
	db.SeedCourse(school.Course{Code: "BSIT", Name: "BS Information Technology"})
	yl := db.SeedYearLevel(school.YearLevel{Name: "1st Year"})

	return svc, db, testFixtures{prd: prd, ylID: yl.ID}
}

func roster(t *testing.T, rows ...string) period.RosterSource {
	t.Helper()
	src, err := period.NewCSVSource(strings.NewReader(rosterHeader + strings.Join(rows, "\n")))
	require.NoError(t, err)
	return src
}

func TestSchoolPeriod_Next(t *testing.T) {
	tests := []struct {
		name    string
		prd     period.SchoolPeriod
		want    period.SchoolPeriod
		wantErr bool
	}{
		{
			name: "first semester rolls within the year",
			prd:  period.SchoolPeriod{SchoolYear: "2026-2027", Semester: period.SemesterFirst},
			want: period.SchoolPeriod{SchoolYear: "2026-2027", Semester: period.SemesterSecond, Status: period.StatusActive},
		},
		{
			name: "second semester rolls into the next year",
			prd:  period.SchoolPeriod{SchoolYear: "2026-2027", Semester: period.SemesterSecond},
			want: period.SchoolPeriod{SchoolYear: "2027-2028", Semester: period.SemesterFirst, Status: period.StatusActive},
		},
		{
			name:    "unknown semester",
			prd:     period.SchoolPeriod{SchoolYear: "2026-2027", Semester: "Summer"},
			wantErr: true,
		},
		{
			name:    "malformed school year",
			prd:     period.SchoolPeriod{SchoolYear: "2026", Semester: period.SemesterSecond},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.prd.Next()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_RosterSync(t *testing.T) {
	svc, db, fix := setup(t)
	ctx := context.Background()
	yl := fix.ylID
	students := dummydb.NewStudentRepository(db)

	stats, err := svc.RosterSync(ctx, roster(t,
		rowf("S-100,Thandi,,Phiri,,thandi@example.com,CCS,BSIT,%d,BSIT 1A", yl),
		rowf("S-101,Kondwani,M,Zulu,Jr,kondwani@example.com,ccs,bsit,%d,bsit  1a", yl),
	))
	require.NoError(t, err)
	assert.Equal(t, period.SyncStats{Created: 2}, stats)

	// both rows resolved to the same block despite spelling differences
	std1, err := students.GetStudent(ctx, "S-100")
	require.NoError(t, err)
	std2, err := students.GetStudent(ctx, "S-101")
	require.NoError(t, err)
	assert.Equal(t, std1.BlockID, std2.BlockID)
	assert.Equal(t, student.StatusUnregistered, std1.Status)

	// a second feed updates identity and disables the absent student
	stats, err = svc.RosterSync(ctx, roster(t,
		rowf("S-100,Thandiwe,,Phiri,,thandi@example.com,CCS,BSIT,%d,BSIT 1A", yl),
	))
	require.NoError(t, err)
	assert.Equal(t, period.SyncStats{Updated: 1, Disabled: 0}, stats)

	std1, err = students.GetStudent(ctx, "S-100")
	require.NoError(t, err)
	assert.Equal(t, "Thandiwe", std1.FirstName)
	// never self-registered: stays Unregistered, not flipped to Active
	assert.Equal(t, student.StatusUnregistered, std1.Status)
}

func TestService_RosterSync_skipsUnresolvableRows(t *testing.T) {
	svc, db, fix := setup(t)
	ctx := context.Background()
	yl := fix.ylID

	stats, err := svc.RosterSync(ctx, roster(t,
		rowf("S-100,Thandi,,Phiri,,,CCS,BSIT,%d,BSIT 1A", yl),
		rowf("S-200,Ghost,,Row,,,NOPE,BSIT,%d,BSIT 1A", yl), // unknown department
		"S-201,Ghost,,Row,,,CCS,BSIT,999,BSIT 1A",           // unknown year level
	))
	require.NoError(t, err)
	assert.Equal(t, period.SyncStats{Created: 1, Skipped: 2}, stats)

	_, err = dummydb.NewStudentRepository(db).GetStudent(ctx, "S-200")
	assert.ErrorIs(t, err, student.ErrNotFound)
}

func TestService_RosterSync_reactivatesDisabledStudents(t *testing.T) {
	svc, db, fix := setup(t)
	ctx := context.Background()
	yl := fix.ylID
	students := dummydb.NewStudentRepository(db)

	_, err := svc.RosterSync(ctx, roster(t,
		rowf("S-100,Thandi,,Phiri,,thandi@example.com,CCS,BSIT,%d,BSIT 1A", yl),
	))
	require.NoError(t, err)
	// let the async welcome mail land before resetting the outbox below
	require.Eventually(t, func() bool { return len(emailsvc.SentMessages) == 1 }, time.Second, 10*time.Millisecond)

	// registered, then dropped off a feed
	std, err := students.GetStudent(ctx, "S-100")
	require.NoError(t, err)
	std.Status = student.StatusActive
	require.NoError(t, students.UpdateStudent(ctx, std))

	stats, err := svc.RosterSync(ctx, roster(t,
		rowf("S-999,Other,,Student,,,CCS,BSIT,%d,BSIT 1A", yl),
	))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Disabled)

	std, err = students.GetStudent(ctx, "S-100")
	require.NoError(t, err)
	require.Equal(t, student.StatusDisabled, std.Status)

	// back on the feed: re-activated and emailed
	emailsvc.SentMessages = nil
	stats, err = svc.RosterSync(ctx, roster(t,
		rowf("S-100,Thandi,,Phiri,,thandi@example.com,CCS,BSIT,%d,BSIT 1A", yl),
	))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)

	std, err = students.GetStudent(ctx, "S-100")
	require.NoError(t, err)
	assert.Equal(t, student.StatusActive, std.Status)
	// delivery is fire-and-forget; wait for the goroutine to record it
	require.Eventually(t, func() bool { return len(emailsvc.SentMessages) == 1 }, time.Second, 10*time.Millisecond)
	assert.Contains(t, emailsvc.SentMessages[0].Subject, "active again")
}

func TestService_Rollover(t *testing.T) {
	svc, db, fix := setup(t)
	ctx := context.Background()
	yl := fix.ylID

	// enroll a student and give them an approved event they never attended
	_, err := svc.RosterSync(ctx, roster(t,
		rowf("S-100,Thandi,,Phiri,,,CCS,BSIT,%d,BSIT 1A", yl),
	))
	require.NoError(t, err)
	students := dummydb.NewStudentRepository(db)
	std, err := students.GetStudent(ctx, "S-100")
	require.NoError(t, err)
	std.Status = student.StatusActive
	require.NoError(t, students.UpdateStudent(ctx, std))

	seedApprovedEvent(t, db, std.BlockID)

	stats, err := svc.Rollover(ctx, roster(t,
		rowf("S-100,Thandi,,Phiri,,,CCS,BSIT,%d,BSIT 2A", yl),
	))
	require.NoError(t, err)
	assert.Equal(t, "2026-2027 "+period.SemesterFirst, stats.From)
	assert.Equal(t, "2026-2027 "+period.SemesterSecond, stats.To)
	assert.Equal(t, 2, stats.Backfilled, "one all-absent record per event date")
	assert.Equal(t, period.SyncStats{Updated: 1}, stats.Sync)

	// the old period and its blocks are archived, the new one is active
	old, err := dummydb.NewPeriodRepository(db).GetPeriod(ctx, fix.prd.ID)
	require.NoError(t, err)
	assert.Equal(t, period.StatusArchived, old.Status)

	current, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, period.SemesterSecond, current.Semester)

	// the student landed in a fresh block belonging to the new period
	std, err = students.GetStudent(ctx, "S-100")
	require.NoError(t, err)
	blk, err := dummydb.NewSchoolRepository(db).FindBlock(ctx, school.BlockKey{
		Name: "BSIT 2A", DepartmentCode: "ccs", CourseCode: "bsit", YearLevelID: yl,
	}, current.ID, true)
	require.NoError(t, err)
	assert.Equal(t, blk.ID, std.BlockID)
}

func TestService_RosterSync_atomic(t *testing.T) {
	svc, db, fix := setup(t)
	ctx := context.Background()

	// the feed breaks after a valid row; nothing from the pass may stick
	_, err := svc.RosterSync(ctx, &faultySource{
		rows: []period.RosterRow{{
			IDNumber: "S-100", FirstName: "Thandi", LastName: "Phiri",
			Department: "CCS", Course: "BSIT", YearLevel: fix.ylID, Block: "BSIT 1A",
		}},
		err: errors.New("connection reset"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading roster feed")

	_, err = dummydb.NewStudentRepository(db).GetStudent(ctx, "S-100")
	assert.ErrorIs(t, err, student.ErrNotFound)
}

func TestService_Rollover_rollsBackOnRosterFailure(t *testing.T) {
	svc, db, fix := setup(t)
	ctx := context.Background()

	_, err := svc.Rollover(ctx, &faultySource{err: errors.New("connection reset")})
	require.Error(t, err)

	// the aborted rollover must not be observable: the old period is still
	// the active one and its blocks were not archived
	current, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, fix.prd.ID, current.ID)
	assert.Equal(t, period.StatusActive, current.Status)

	old, err := dummydb.NewPeriodRepository(db).GetPeriod(ctx, fix.prd.ID)
	require.NoError(t, err)
	assert.Equal(t, period.StatusActive, old.Status)
}

func TestService_Rollover_keepsStudentsMissingFromFeed(t *testing.T) {
	svc, db, fix := setup(t)
	ctx := context.Background()
	yl := fix.ylID
	students := dummydb.NewStudentRepository(db)

	_, err := svc.RosterSync(ctx, roster(t,
		rowf("S-100,Thandi,,Phiri,,,CCS,BSIT,%d,BSIT 1A", yl),
		rowf("S-101,Kondwani,,Zulu,,,CCS,BSIT,%d,BSIT 1A", yl),
	))
	require.NoError(t, err)
	for _, id := range []string{"S-100", "S-101"} {
		std, err := students.GetStudent(ctx, id)
		require.NoError(t, err)
		std.Status = student.StatusActive
		require.NoError(t, students.UpdateStudent(ctx, std))
	}

	// only S-100 made the next semester's feed; S-101 stays Active, a
	// rollover feed never disables anyone
	stats, err := svc.Rollover(ctx, roster(t,
		rowf("S-100,Thandi,,Phiri,,,CCS,BSIT,%d,BSIT 1A", yl),
	))
	require.NoError(t, err)
	assert.Zero(t, stats.Sync.Disabled)

	std, err := students.GetStudent(ctx, "S-101")
	require.NoError(t, err)
	assert.Equal(t, student.StatusActive, std.Status)
}

func TestService_Rollover_atomic(t *testing.T) {
	svc, db, fix := setup(t)
	ctx := context.Background()
	yl := fix.ylID

	db.FailCreatePeriod = errors.New("boom")
	_, err := svc.Rollover(ctx, roster(t,
		rowf("S-100,Thandi,,Phiri,,,CCS,BSIT,%d,BSIT 1A", yl),
	))
	require.Error(t, err)
	db.FailCreatePeriod = nil

	// the failed rollover left the current period untouched
	current, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, fix.prd.ID, current.ID)
	assert.Equal(t, period.StatusActive, current.Status)
}

// seedApprovedEvent plants an approved event with two dates for blockID.
func seedApprovedEvent(t *testing.T, db *dummydb.DB, blockID int) {
	t.Helper()
	ctx := context.Background()

	name := db.SeedEventName(event.EventName{Name: "Foundation Day"})
	adm := db.SeedAdmin(admin.Admin{IDNumber: "A-002", FirstName: "Sam", LastName: "Banda", RoleID: admin.RoleSuperAdmin})

	logger := logsvc.NewConsoleLogger(log.New(io.Discard, "", 0))
	evSvc := event.NewService(
		db,
		dummydb.NewEventRepository(db),
		dummydb.NewAdminRepository(db),
		dummydb.NewPeriodRepository(db),
		dummydb.NewAttendanceRepository(db),
		broadcastsvc.NewRecorder(),
		logger,
	)
	amIn := "08:00:00"
	_, err := evSvc.Create(ctx, event.EventInput{
		EventNameID: name.ID,
		Venue:       "Quadrangle",
		Dates:       []string{"2026-09-10", "2026-09-11"},
		BlockIDs:    []int{blockID},
		AmIn:        &amIn,
		ActorID:     adm.IDNumber,
	})
	require.NoError(t, err)
}

func rowf(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}

// faultySource feeds its rows and then fails like a broken connection.
type faultySource struct {
	rows []period.RosterRow
	err  error
}

func (s *faultySource) Next() (period.RosterRow, error) {
	if len(s.rows) == 0 {
		return period.RosterRow{}, s.err
	}
	row := s.rows[0]
	s.rows = s.rows[1:]
	return row, nil
}
