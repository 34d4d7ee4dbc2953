package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/trezcool/mahudhurio/core/event"
	"github.com/trezcool/mahudhurio/core/period"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db         *sql.DB
	periodRepo period.Repository
	periodSvc  *period.Service
	eventSvc   *event.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS...] - run database migrations (up, down, status, ...)")
	fmt.Println("  createperiod -year YYYY-YYYY -semester \"1st Semester\"|\"2nd Semester\" - open a new active school period")
	fmt.Println("  rostersync -file ROSTER.csv - sync the student roster into the active period")
	fmt.Println("  rollover -file ROSTER.csv - archive the active period and open the next one")
	fmt.Println("  sweep - archive events whose dates have all passed")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createPeriodCmd := flag.NewFlagSet("createperiod", flag.ExitOnError)
	createPeriodYear := createPeriodCmd.String("year", "", "The school year, e.g. 2026-2027.")
	createPeriodSem := createPeriodCmd.String("semester", period.SemesterFirst, "The semester.")

	rosterSyncCmd := flag.NewFlagSet("rostersync", flag.ExitOnError)
	rosterSyncFile := rosterSyncCmd.String("file", "", "Path to the roster CSV file.")

	rolloverCmd := flag.NewFlagSet("rollover", flag.ExitOnError)
	rolloverFile := rolloverCmd.String("file", "", "Path to the next period's roster CSV file.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "createperiod":
		if err := createPeriodCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *createPeriodYear == "" {
			createPeriodCmd.Usage()
			return errHelp
		}
		return cli.createPeriod(*createPeriodYear, *createPeriodSem)

	case "rostersync":
		if err := rosterSyncCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *rosterSyncFile == "" {
			rosterSyncCmd.Usage()
			return errHelp
		}
		return cli.rosterSync(*rosterSyncFile)

	case "rollover":
		if err := rolloverCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *rolloverFile == "" {
			rolloverCmd.Usage()
			return errHelp
		}
		return cli.rollover(*rolloverFile)

	case "sweep":
		return cli.sweep()

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) createPeriod(year, semester string) error {
	prd, err := cli.periodRepo.CreatePeriod(context.Background(), period.SchoolPeriod{
		SchoolYear: year,
		Semester:   semester,
		Status:     period.StatusActive,
	})
	if err != nil {
		return err
	}
	fmt.Printf("school period %q opened (id=%d)\n", prd.String(), prd.ID)
	return nil
}

func (cli *commandLine) rosterSync(path string) error {
	src, file, err := openRoster(path)
	if err != nil {
		return err
	}
	defer file.Close()

	stats, err := cli.periodSvc.RosterSync(context.Background(), src)
	if err != nil {
		return err
	}
	fmt.Printf("roster synced: %d created, %d updated, %d skipped, %d disabled\n",
		stats.Created, stats.Updated, stats.Skipped, stats.Disabled)
	return nil
}

func (cli *commandLine) rollover(path string) error {
	src, file, err := openRoster(path)
	if err != nil {
		return err
	}
	defer file.Close()

	stats, err := cli.periodSvc.Rollover(context.Background(), src)
	if err != nil {
		return err
	}
	fmt.Printf("rolled over %q -> %q: %d absences backfilled\n", stats.From, stats.To, stats.Backfilled)
	fmt.Printf("roster synced: %d created, %d updated, %d skipped, %d disabled\n",
		stats.Sync.Created, stats.Sync.Updated, stats.Sync.Skipped, stats.Sync.Disabled)
	return nil
}

func (cli *commandLine) sweep() error {
	n, err := cli.eventSvc.SweepArchived(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("archived %d event(s)\n", n)
	return nil
}

func openRoster(path string) (*period.CSVSource, *os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	src, err := period.NewCSVSource(file)
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	return src, file, nil
}
