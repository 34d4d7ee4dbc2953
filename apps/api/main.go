package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	echoapi "github.com/trezcool/mahudhurio/apps/api/echo"
	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/event"
	"github.com/trezcool/mahudhurio/core/period"
	broadcastsvc "github.com/trezcool/mahudhurio/services/broadcast"
	emailsvc "github.com/trezcool/mahudhurio/services/email"
	logsvc "github.com/trezcool/mahudhurio/services/logger"
	"github.com/trezcool/mahudhurio/storage/database"
	sqlxrepos "github.com/trezcool/mahudhurio/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Fatal("failed to close database", err)
		}
	}()
	appDB := database.New(db)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	hub := broadcastsvc.NewHub()

	periodRepo := sqlxrepos.NewPeriodRepository(appDB)
	schoolRepo := sqlxrepos.NewSchoolRepository(appDB)
	studentRepo := sqlxrepos.NewStudentRepository(appDB)
	adminRepo := sqlxrepos.NewAdminRepository(appDB)
	eventRepo := sqlxrepos.NewEventRepository(appDB)
	attRepo := sqlxrepos.NewAttendanceRepository(appDB)

	eventSvc := event.NewService(appDB, eventRepo, adminRepo, periodRepo, attRepo, hub, logger)
	periodSvc := period.NewService(appDB, periodRepo, schoolRepo, studentRepo, eventRepo, attRepo, mailSvc, logger)
	attSvc := attendance.NewService(attRepo, eventRepo, studentRepo, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Archival Sweeper

	sweeperCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go runSweeper(sweeperCtx, conf, eventSvc, logger)

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			EventSvc:      eventSvc,
			AttendanceSvc: attSvc,
			PeriodSvc:     periodSvc,
			Hub:           hub,
		},
	)

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
		stopSweeper()

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// runSweeper archives past events once at boot and then on every tick.
func runSweeper(ctx context.Context, conf *core.Config, svc *event.Service, logger core.Logger) {
	sweep := func() {
		n, err := svc.SweepArchived(ctx)
		if err != nil {
			logger.Error(fmt.Sprintf("archival sweep: %v", err), err)
			return
		}
		if n > 0 {
			logger.Info(fmt.Sprintf("archival sweep: archived %d event(s)", n))
		}
	}
	sweep()

	ticker := time.NewTicker(conf.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
