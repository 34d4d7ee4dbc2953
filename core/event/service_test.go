package event_test

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mahudhurio/core"
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
	prd        period.SchoolPeriod
	block      school.Block
	eventName  event.EventName
	regular    admin.Admin
	superAdmin admin.Admin
}

func setup(t *testing.T) (*event.Service, *dummydb.DB, *broadcastsvc.Recorder, fixtures) {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)
	logger := logsvc.NewConsoleLogger(log.New(io.Discard, "", 0))
	recorder := broadcastsvc.NewRecorder()

	periodRepo := dummydb.NewPeriodRepository(db)
	svc := event.NewService(
		db,
		dummydb.NewEventRepository(db),
		dummydb.NewAdminRepository(db),
		periodRepo,
		dummydb.NewAttendanceRepository(db),
		recorder,
		logger,
	)

	ctx := context.Background()
	fix := fixtures{}
	fix.prd, err = periodRepo.CreatePeriod(ctx, period.SchoolPeriod{
		SchoolYear: "2026-2027",
		Semester:   period.SemesterFirst,
		Status:     period.StatusActive,
	})
	require.NoError(t, err)

	dept := db.SeedDepartment(school.Department{Code: "CCS", Name: "College of Computer Studies"})
	crs := db.SeedCourse(school.Course{Code: "BSIT", Name: "BS Information Technology"})
	yl := db.SeedYearLevel(school.YearLevel{Name: "1st Year"})
	fix.block, err = dummydb.NewSchoolRepository(db).CreateBlock(ctx, school.Block{
		Name:           "BSIT 1A",
		DepartmentID:   dept.ID,
		CourseID:       crs.ID,
		YearLevelID:    yl.ID,
		SchoolPeriodID: fix.prd.ID,
		Status:         school.StatusActive,
	})
	require.NoError(t, err)

	fix.eventName = db.SeedEventName(event.EventName{Name: "Intramurals"})
	fix.regular = db.SeedAdmin(admin.Admin{IDNumber: "A-001", FirstName: "Jane", LastName: "Moyo", RoleID: 2})
	fix.superAdmin = db.SeedAdmin(admin.Admin{IDNumber: "A-002", FirstName: "Sam", LastName: "Banda", RoleID: admin.RoleSuperAdmin})

	return svc, db, recorder, fix
}

func eventInput(fix fixtures, actor admin.Admin, dates ...string) event.EventInput {
	amIn, pmIn := "08:00:00", "13:00:00"
	return event.EventInput{
		EventNameID: fix.eventName.ID,
		Venue:       "Gymnasium",
		Description: "Annual sports fest",
		Dates:       dates,
		BlockIDs:    []int{fix.block.ID},
		AmIn:        &amIn,
		PmIn:        &pmIn,
		ActorID:     actor.IDNumber,
	}
}

func TestService_Create(t *testing.T) {
	svc, _, recorder, fix := setup(t)
	ctx := context.Background()

	detail, err := svc.Create(ctx, eventInput(fix, fix.regular, "2026-09-10", "2026-09-11"))
	require.NoError(t, err)
	assert.Equal(t, event.StatusPending, detail.Status)
	assert.Equal(t, "Intramurals", detail.Name)
	assert.Equal(t, []string{"2026-09-10", "2026-09-11"}, detail.Dates)
	assert.Equal(t, []int{fix.block.ID}, detail.BlockIDs)
	assert.Equal(t, "Jane Moyo", detail.CreatedByName)
	assert.Empty(t, detail.ApprovedByName)
	assert.Empty(t, recorder.Messages, "pending events must not be announced")
}

func TestService_Create_superAdminAutoApproves(t *testing.T) {
	svc, _, recorder, fix := setup(t)
	ctx := context.Background()

	detail, err := svc.Create(ctx, eventInput(fix, fix.superAdmin, "2026-09-10"))
	require.NoError(t, err)
	assert.Equal(t, event.StatusApproved, detail.Status)
	assert.NotEmpty(t, detail.ApprovedByName)

	all := recorder.Sent(core.AllEventsChannel)
	require.Len(t, all, 1)
	assert.Equal(t, "newApprovedEvent", all[0].Event)
	notice, ok := all[0].Payload.(event.ApprovedEventNotice)
	require.True(t, ok)
	assert.Equal(t, detail.ID, notice.EventID)
	assert.Equal(t, []string{"2026-09-10"}, notice.Dates)

	require.Len(t, recorder.Sent(core.BlockChannel(fix.block.ID)), 1)
}

func TestService_Create_duplicateDetection(t *testing.T) {
	svc, _, _, fix := setup(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, eventInput(fix, fix.regular, "2026-09-10", "2026-09-11"))
	require.NoError(t, err)

	// same name+venue+dates+blocks, dates in a different order
	_, err = svc.Create(ctx, eventInput(fix, fix.regular, "2026-09-11", "2026-09-10"))
	assert.ErrorIs(t, err, event.ErrDuplicateEvent)

	// a different date set is a different event
	_, err = svc.Create(ctx, eventInput(fix, fix.regular, "2026-09-11"))
	assert.NoError(t, err)
}

func TestService_Create_noActivePeriod(t *testing.T) {
	svc, db, _, fix := setup(t)
	ctx := context.Background()

	require.NoError(t, dummydb.NewPeriodRepository(db).ArchivePeriod(ctx, fix.prd.ID))

	_, err := svc.Create(ctx, eventInput(fix, fix.regular, "2026-09-10"))
	assert.ErrorIs(t, err, event.ErrNoActivePeriod)
}

func TestService_Create_validation(t *testing.T) {
	svc, _, _, fix := setup(t)
	ctx := context.Background()

	in := eventInput(fix, fix.regular, "2026-09-10")
	in.Venue = "   "
	_, err := svc.Create(ctx, in)
	assert.Error(t, err)

	in = eventInput(fix, fix.regular, "10/09/2026")
	_, err = svc.Create(ctx, in)
	assert.Error(t, err, "dates must be ISO formatted")
}

func TestService_Edit(t *testing.T) {
	svc, db, _, fix := setup(t)
	ctx := context.Background()

	detail, err := svc.Create(ctx, eventInput(fix, fix.regular, "2026-09-10"))
	require.NoError(t, err)

	// scan some attendance against the original schedule
	std := seedActiveStudent(t, db, fix, "S-100")
	dates, err := dummydb.NewEventRepository(db).GetEventDates(ctx, detail.ID)
	require.NoError(t, err)
	attRepo := dummydb.NewAttendanceRepository(db)
	_, err = attRepo.CreateAttendance(ctx, attendance.Attendance{
		EventDateID: dates[0].ID, StudentID: std.IDNumber, BlockID: std.BlockID, AmIn: true,
	})
	require.NoError(t, err)

	in := eventInput(fix, fix.regular, "2026-09-12", "2026-09-13")
	in.Venue = "Covered Court"
	updated, err := svc.Edit(ctx, detail.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Covered Court", updated.Venue)
	assert.Equal(t, []string{"2026-09-12", "2026-09-13"}, updated.Dates)

	// the old schedule's attendance is gone
	n, err := attRepo.CountAttendanceByEvent(ctx, detail.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_Edit_rollsBackOnFailure(t *testing.T) {
	svc, db, _, fix := setup(t)
	ctx := context.Background()

	detail, err := svc.Create(ctx, eventInput(fix, fix.regular, "2026-09-10"))
	require.NoError(t, err)

	db.FailCreateEventDates = errors.New("boom")
	in := eventInput(fix, fix.regular, "2026-09-12")
	_, err = svc.Edit(ctx, detail.ID, in)
	require.Error(t, err)
	db.FailCreateEventDates = nil

	// nothing moved: the original schedule survived the failed rewrite
	after, err := svc.GetByID(ctx, detail.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gymnasium", after.Venue)
	assert.Equal(t, []string{"2026-09-10"}, after.Dates)
}

func TestService_Approve(t *testing.T) {
	svc, _, recorder, fix := setup(t)
	ctx := context.Background()

	detail, err := svc.Create(ctx, eventInput(fix, fix.regular, "2026-09-10"))
	require.NoError(t, err)

	_, err = svc.Approve(ctx, detail.ID, fix.regular.IDNumber)
	assert.ErrorIs(t, err, event.ErrApprovalRights)

	approved, err := svc.Approve(ctx, detail.ID, fix.superAdmin.IDNumber)
	require.NoError(t, err)
	assert.Equal(t, event.StatusApproved, approved.Status)
	assert.Len(t, recorder.Sent(core.AllEventsChannel), 1)

	_, err = svc.Approve(ctx, detail.ID, fix.superAdmin.IDNumber)
	assert.ErrorIs(t, err, event.ErrNotPending)
}

func TestService_Approve_rejectsEventWithoutDatesOrBlocks(t *testing.T) {
	svc, db, recorder, fix := setup(t)
	ctx := context.Background()

	// a Pending event stripped of its schedule and audience
	ev, err := dummydb.NewEventRepository(db).CreateEvent(ctx, event.Event{
		EventNameID:    fix.eventName.ID,
		SchoolPeriodID: fix.prd.ID,
		Venue:          "Gymnasium",
		CreatedBy:      fix.regular.IDNumber,
		Status:         event.StatusPending,
	})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, ev.ID, fix.superAdmin.IDNumber)
	assert.ErrorIs(t, err, event.ErrInconsistentEvent)

	// still Pending, nothing announced
	after, err := dummydb.NewEventRepository(db).GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusPending, after.Status)
	assert.Empty(t, recorder.Sent(core.AllEventsChannel))
}

func TestService_Delete(t *testing.T) {
	svc, _, _, fix := setup(t)
	ctx := context.Background()

	detail, err := svc.Create(ctx, eventInput(fix, fix.regular, "2026-09-10"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, detail.ID))

	after, err := svc.GetByID(ctx, detail.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusDeleted, after.Status)

	assert.ErrorIs(t, svc.Delete(ctx, detail.ID), event.ErrNotFound)
}

func TestService_SweepArchived(t *testing.T) {
	svc, _, _, fix := setup(t)
	ctx := context.Background()

	past, err := svc.Create(ctx, eventInput(fix, fix.superAdmin, "2020-01-10", "2020-01-11"))
	require.NoError(t, err)

	future := time.Now().UTC().AddDate(0, 1, 0).Format(event.DateLayout)
	upcoming, err := svc.Create(ctx, eventInput(fix, fix.superAdmin, future))
	require.NoError(t, err)

	n, err := svc.SweepArchived(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	archived, err := svc.GetByID(ctx, past.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusArchived, archived.Status)

	kept, err := svc.GetByID(ctx, upcoming.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusApproved, kept.Status)
}

func seedActiveStudent(t *testing.T, db *dummydb.DB, fix fixtures, idNumber string) student.Student {
	t.Helper()
	std, err := dummydb.NewStudentRepository(db).CreateStudent(context.Background(), student.Student{
		IDNumber:  idNumber,
		FirstName: "Thandi",
		LastName:  "Phiri",
		BlockID:   fix.block.ID,
		Status:    student.StatusActive,
	})
	require.NoError(t, err)
	return std
}
