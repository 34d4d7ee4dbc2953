package main

import (
	"log"
	"os"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/event"
	"github.com/trezcool/mahudhurio/core/period"
	emailsvc "github.com/trezcool/mahudhurio/services/email"
	logsvc "github.com/trezcool/mahudhurio/services/logger"
	"github.com/trezcool/mahudhurio/storage/database"
	sqlxrepos "github.com/trezcool/mahudhurio/storage/database/sqlx"
)

var logger *log.Logger

type noopBroadcaster struct{}

func (noopBroadcaster) Publish(channel, event string, payload interface{}) {}

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()
	appLogger := logsvc.NewConsoleLogger(logger)

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())
	appDB := database.New(db)

	periodRepo := sqlxrepos.NewPeriodRepository(appDB)
	eventRepo := sqlxrepos.NewEventRepository(appDB)
	attRepo := sqlxrepos.NewAttendanceRepository(appDB)

	// start CLI
	cli := commandLine{
		db:         db,
		periodRepo: periodRepo,
		periodSvc: period.NewService(
			appDB,
			periodRepo,
			sqlxrepos.NewSchoolRepository(appDB),
			sqlxrepos.NewStudentRepository(appDB),
			eventRepo,
			attRepo,
			emailsvc.NewConsoleService(conf),
			appLogger,
		),
		eventSvc: event.NewService(
			appDB,
			eventRepo,
			sqlxrepos.NewAdminRepository(appDB),
			periodRepo,
			attRepo,
			noopBroadcaster{},
			appLogger,
		),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
