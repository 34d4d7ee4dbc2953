package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

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
	emailsvc "github.com/trezcool/mahudhurio/services/email"
	logsvc "github.com/trezcool/mahudhurio/services/logger"
	dummydb "github.com/trezcool/mahudhurio/storage/database/dummy"
)

type testEnv struct {
	server *Server
	db     *dummydb.DB
	prd    period.SchoolPeriod
	block  school.Block
	name   event.EventName
	super  admin.Admin
	ylID   int
}

func setup(t *testing.T) testEnv {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)
	logger := logsvc.NewConsoleLogger(log.New(io.Discard, "", 0))
	mailer := emailsvc.NewConsoleServiceMock(&core.Config{AppName: "Mahudhurio"})
	hub := broadcastsvc.NewHub()
	ctx := context.Background()

	periodRepo := dummydb.NewPeriodRepository(db)
	eventRepo := dummydb.NewEventRepository(db)
	attRepo := dummydb.NewAttendanceRepository(db)
	studentRepo := dummydb.NewStudentRepository(db)

	env := testEnv{db: db}
	env.prd, err = periodRepo.CreatePeriod(ctx, period.SchoolPeriod{
		SchoolYear: "2026-2027", Semester: period.SemesterFirst, Status: period.StatusActive,
	})
	require.NoError(t, err)

	dept := db.SeedDepartment(school.Department{Code: "CCS", Name: "College of Computer Studies"})
	crs := db.SeedCourse(school.Course{Code: "BSIT", Name: "BS Information Technology"})
	yl := db.SeedYearLevel(school.YearLevel{Name: "1st Year"})
	env.ylID = yl.ID
	env.block, err = dummydb.NewSchoolRepository(db).CreateBlock(ctx, school.Block{
		Name: "BSIT 1A", DepartmentID: dept.ID, CourseID: crs.ID, YearLevelID: yl.ID,
		SchoolPeriodID: env.prd.ID, Status: school.StatusActive,
	})
	require.NoError(t, err)
	env.name = db.SeedEventName(event.EventName{Name: "Intramurals"})
	env.super = db.SeedAdmin(admin.Admin{IDNumber: "A-002", FirstName: "Sam", LastName: "Banda", RoleID: admin.RoleSuperAdmin})

	_, err = studentRepo.CreateStudent(ctx, student.Student{
		IDNumber: "S-100", FirstName: "Thandi", LastName: "Phiri",
		BlockID: env.block.ID, Status: student.StatusActive,
	})
	require.NoError(t, err)

	eventSvc := event.NewService(db, eventRepo, dummydb.NewAdminRepository(db), periodRepo, attRepo, hub, logger)
	periodSvc := period.NewService(db, periodRepo, dummydb.NewSchoolRepository(db), studentRepo, eventRepo, attRepo, mailer, logger)
	attSvc := attendance.NewService(attRepo, eventRepo, studentRepo, logger)

	env.server = NewServer(ServerDeps{
		Conf:           &core.Config{AppName: "Mahudhurio", TestMode: true, Server: core.ServerConfig{Host: "127.0.0.1", Port: "0"}},
		Logger:         logger,
		EventSvc:       eventSvc,
		AttendanceSvc:  attSvc,
		PeriodSvc:      periodSvc,
		Hub:            hub,
		DisableReqLogs: true,
	})
	return env
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func createEvent(t *testing.T, env testEnv, dates ...string) event.EventDetail {
	t.Helper()
	rec := doJSON(t, env.server, http.MethodPost, "/v1/events", map[string]interface{}{
		"event_name_id":   env.name.ID,
		"venue":           "Gymnasium",
		"dates":           dates,
		"block_ids":       []int{env.block.ID},
		"am_in":           "08:00:00",
		"admin_id_number": env.super.IDNumber,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var detail event.EventDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	return detail
}

func TestServer_home(t *testing.T) {
	env := setup(t)
	rec := doJSON(t, env.server, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Mahudhurio")
}

func TestServer_eventAPI(t *testing.T) {
	env := setup(t)

	detail := createEvent(t, env, "2026-09-10")
	assert.Equal(t, event.StatusApproved, detail.Status)

	rec := doJSON(t, env.server, http.MethodGet, fmt.Sprintf("/v1/events/%d", detail.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// duplicate submission conflicts
	rec = doJSON(t, env.server, http.MethodPost, "/v1/events", map[string]interface{}{
		"event_name_id":   env.name.ID,
		"venue":           "Gymnasium",
		"dates":           []string{"2026-09-10"},
		"block_ids":       []int{env.block.ID},
		"am_in":           "08:00:00",
		"admin_id_number": env.super.IDNumber,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// validation errors map to 400
	rec = doJSON(t, env.server, http.MethodPost, "/v1/events", map[string]interface{}{
		"event_name_id":   env.name.ID,
		"admin_id_number": env.super.IDNumber,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// unknown ids map to 404
	rec = doJSON(t, env.server, http.MethodGet, "/v1/events/424242", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, env.server, http.MethodGet, "/v1/events/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// already-approved events cannot be approved again: state errors map to 422
	rec = doJSON(t, env.server, http.MethodPost, fmt.Sprintf("/v1/events/%d/approve", detail.ID), map[string]string{
		"admin_id_number": env.super.IDNumber,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, env.server, http.MethodDelete, fmt.Sprintf("/v1/events/%d", detail.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServer_attendanceAPI(t *testing.T) {
	env := setup(t)
	detail := createEvent(t, env, "2026-09-10", "2026-09-11")

	dates, err := dummydb.NewEventRepository(env.db).GetEventDates(context.Background(), detail.ID)
	require.NoError(t, err)

	rec := doJSON(t, env.server, http.MethodPost, "/v1/attendance/sync", map[string]interface{}{
		"records": []map[string]interface{}{
			{"event_date_id": dates[0].ID, "student_id_number": "S-100", "am_in": true},
			{"event_date_id": 424242, "student_id_number": "S-100", "am_in": true},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res attendance.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Len(t, res.Synced, 1)
	assert.Len(t, res.Failed, 1)

	// empty batches are rejected
	rec = doJSON(t, env.server, http.MethodPost, "/v1/attendance/sync", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, env.server, http.MethodGet,
		fmt.Sprintf("/v1/attendance/events/%d/blocks/%d?filter=present", detail.ID, env.block.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sum attendance.BlockSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	require.Len(t, sum.Students, 1)
	assert.Equal(t, "S-100", sum.Students[0].StudentID)

	rec = doJSON(t, env.server, http.MethodGet, fmt.Sprintf("/v1/attendance/events/%d/summary", detail.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, env.server, http.MethodGet,
		fmt.Sprintf("/v1/attendance/events/%d/students/S-100", detail.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, env.server, http.MethodGet, "/v1/attendance/students/S-100/schedule?date=2026-09-10", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, env.server, http.MethodGet, "/v1/attendance/students/S-100/schedule?date=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_periodAPI(t *testing.T) {
	env := setup(t)

	rec := doJSON(t, env.server, http.MethodGet, "/v1/periods/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var prd period.SchoolPeriod
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prd))
	assert.Equal(t, "2026-2027", prd.SchoolYear)

	// roster upload
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(rosterFileField, "roster.csv")
	require.NoError(t, err)
	_, err = fmt.Fprintf(fw,
		"id_number,first_name,last_name,department,course,year_level,block\nS-200,Neo,Dube,CCS,BSIT,%d,BSIT 1B\n", env.ylID)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/periods/roster-sync", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res := httptest.NewRecorder()
	env.server.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var stats period.SyncStats
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Created)

	// a missing file is a validation error
	rec = doJSON(t, env.server, http.MethodPost, "/v1/periods/roster-sync", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
