package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"log"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/event"
	"github.com/trezcool/mahudhurio/core/period"
	emailsvc "github.com/trezcool/mahudhurio/services/email"
	logsvc "github.com/trezcool/mahudhurio/services/logger"
	dummydb "github.com/trezcool/mahudhurio/storage/database/dummy"
)

func setup(t *testing.T) (*commandLine, *dummydb.DB) {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)
	appLogger := logsvc.NewConsoleLogger(log.New(io.Discard, "", 0))
	mailer := emailsvc.NewConsoleServiceMock(&core.Config{AppName: "Mahudhurio"})

	periodRepo := dummydb.NewPeriodRepository(db)
	eventRepo := dummydb.NewEventRepository(db)
	attRepo := dummydb.NewAttendanceRepository(db)

	cli := &commandLine{
		periodRepo: periodRepo,
		periodSvc: period.NewService(
			db, periodRepo,
			dummydb.NewSchoolRepository(db),
			dummydb.NewStudentRepository(db),
			eventRepo, attRepo, mailer, appLogger,
		),
		eventSvc: event.NewService(
			db, eventRepo,
			dummydb.NewAdminRepository(db),
			periodRepo, attRepo, noopBroadcaster{}, appLogger,
		),
	}
	return cli, db
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func Test_commandLine_run(t *testing.T) {
	cli, _ := setup(t)

	tests := []cliTest{
		{name: "no command", args: []string{}, wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "createperiod: no year", args: []string{"createperiod"}, wantErr: errHelp},
		{name: "rostersync: no file", args: []string{"rostersync"}, wantErr: errHelp},
		{name: "rollover: no file", args: []string{"rollover"}, wantErr: errHelp},
		{name: "migrate: no subcommand", args: []string{"migrate"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(append([]string{"admin"}, tt.args...))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else if tt.wantErrStr != "" {
				assert.EqualError(t, err, tt.wantErrStr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(append([]string{"admin"}, tt.args...))
			if tt.wantErrStr != "" {
				assert.EqualError(t, err, tt.wantErrStr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_createPeriod(t *testing.T) {
	cli, _ := setup(t)

	err := cli.run([]string{"admin", "createperiod", "-year", "2026-2027"})
	require.NoError(t, err)

	prd, err := cli.periodRepo.GetActivePeriod(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-2027", prd.SchoolYear)
	assert.Equal(t, period.SemesterFirst, prd.Semester)

	// only one active period may exist
	err = cli.run([]string{"admin", "createperiod", "-year", "2027-2028"})
	assert.ErrorIs(t, err, period.ErrPeriodExists)
}
