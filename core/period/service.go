package period

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
	"github.com/trezcool/mahudhurio/core/student"
)

type (
	// EventStore is the slice of the event repository rollover needs.
	EventStore interface {
		QueryApprovedEventIDs(ctx context.Context, periodID int, exec ...core.DBExecutor) ([]int, error)
	}

	// AttendanceStore backfills all-false placeholder records for audience
	// students who never scanned in before the period closes.
	AttendanceStore interface {
		BackfillAbsences(ctx context.Context, eventIDs []int, exec ...core.DBExecutor) (int, error)
	}

	SyncStats struct {
		Created  int `json:"created"`
		Updated  int `json:"updated"`
		Skipped  int `json:"skipped"`
		Disabled int `json:"disabled"`
	}

	RolloverStats struct {
		From       string    `json:"from"`
		To         string    `json:"to"`
		Backfilled int       `json:"backfilled"`
		Sync       SyncStats `json:"sync"`
	}

	Service struct {
		db         core.DB
		repo       Repository
		schools    school.Repository
		students   student.Repository
		events     EventStore
		attendance AttendanceStore
		mailer     core.EmailService
		logger     core.Logger
	}
)

func NewService(
	db core.DB,
	repo Repository,
	schools school.Repository,
	students student.Repository,
	events EventStore,
	attendance AttendanceStore,
	mailer core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		db:         db,
		repo:       repo,
		schools:    schools,
		students:   students,
		events:     events,
		attendance: attendance,
		mailer:     mailer,
		logger:     logger,
	}
}

func (svc *Service) Current(ctx context.Context) (SchoolPeriod, error) {
	return svc.repo.GetActivePeriod(ctx)
}

// RosterSync ingests an enrollment feed into the active period in a single
// transaction. Rows are processed independently: one unresolvable row is
// skipped and counted, it never aborts the run; any other failure rolls the
// whole pass back. Active students absent from the feed are disabled once
// the whole feed has been read.
func (svc *Service) RosterSync(ctx context.Context, src RosterSource) (SyncStats, error) {
	prd, err := svc.repo.GetActivePeriod(ctx)
	if err != nil {
		return SyncStats{}, err
	}

	tx, err := svc.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return SyncStats{}, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	stats, err := svc.syncRoster(ctx, prd, src, true /* disableAbsent */, tx)
	if err != nil {
		return stats, err
	}
	if err = tx.Commit(); err != nil {
		return stats, errors.Wrap(err, "committing transaction")
	}
	svc.logger.Info("roster sync done",
		"period", prd.String(), "created", stats.Created, "updated", stats.Updated,
		"skipped", stats.Skipped, "disabled", stats.Disabled)
	return stats, nil
}

// syncRoster runs the roster pass on exec, the caller's transaction. The
// disable pass only applies to a within-period sync; a rollover feed opens a
// fresh period where absence means "not yet re-enrolled", not "dropped".
func (svc *Service) syncRoster(ctx context.Context, prd SchoolPeriod, src RosterSource, disableAbsent bool, exec core.DBExecutor) (SyncStats, error) {
	var (
		stats  SyncStats
		seen   []string
		blocks = make(map[school.BlockKey]school.Block)
	)
	for {
		row, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, errors.Wrap(err, "reading roster feed")
		}
		if err = svc.syncRow(ctx, prd, row, blocks, &stats, exec); err != nil {
			if core.IsNotFoundError(err) {
				// unknown department, course or year level; the registrar
				// feed regularly carries rows for units we do not track
				stats.Skipped++
				svc.logger.Debug("skipping roster row", "id_number", row.IDNumber, "reason", err.Error())
				continue
			}
			return stats, err
		}
		seen = append(seen, core.CleanString(row.IDNumber))
	}

	if disableAbsent {
		disabled, err := svc.students.DisableAbsentStudents(ctx, seen, exec)
		if err != nil {
			return stats, err
		}
		stats.Disabled = disabled
	}
	return stats, nil
}

func (svc *Service) syncRow(ctx context.Context, prd SchoolPeriod, row RosterRow, blocks map[school.BlockKey]school.Block, stats *SyncStats, exec core.DBExecutor) error {
	key := school.BlockKey{
		Name:           school.NormalizeBlockName(row.Block),
		DepartmentCode: core.CleanString(row.Department, true /* lower */),
		CourseCode:     core.CleanString(row.Course, true /* lower */),
		YearLevelID:    row.YearLevel,
	}
	blk, ok := blocks[key]
	if !ok {
		var err error
		if blk, err = svc.resolveBlock(ctx, prd, key, exec); err != nil {
			return err
		}
		blocks[key] = blk
	}

	std, err := svc.students.GetStudent(ctx, core.CleanString(row.IDNumber), exec)
	if err != nil {
		if !errors.Is(err, student.ErrNotFound) {
			return err
		}
		_, err = svc.students.CreateStudent(ctx, student.Student{
			IDNumber:   core.CleanString(row.IDNumber),
			FirstName:  core.CleanString(row.FirstName),
			MiddleName: core.CleanString(row.MiddleName),
			LastName:   core.CleanString(row.LastName),
			Suffix:     core.CleanString(row.Suffix),
			Email:      core.CleanString(row.Email, true /* lower */),
			BlockID:    blk.ID,
			Status:     student.StatusUnregistered,
		}, exec)
		if err != nil {
			return err
		}
		stats.Created++
		if addr := core.CleanString(row.Email, true); addr != "" {
			svc.sendWelcomeEmail(core.CleanString(row.FirstName), core.CleanString(row.LastName), addr)
		}
		return nil
	}

	wasDisabled := std.Status == student.StatusDisabled
	std.FirstName = core.CleanString(row.FirstName)
	std.MiddleName = core.CleanString(row.MiddleName)
	std.LastName = core.CleanString(row.LastName)
	std.Suffix = core.CleanString(row.Suffix)
	std.BlockID = blk.ID
	// students who never self-registered stay Unregistered until they do
	if std.Status != student.StatusUnregistered {
		std.Status = student.StatusActive
	}
	if err = svc.students.UpdateStudent(ctx, std, exec); err != nil {
		return err
	}
	stats.Updated++

	if wasDisabled && std.Email != "" {
		svc.sendReactivationEmail(std)
	}
	return nil
}

// resolveBlock finds the period's block for key, creating it on first sight.
func (svc *Service) resolveBlock(ctx context.Context, prd SchoolPeriod, key school.BlockKey, exec core.DBExecutor) (school.Block, error) {
	dept, err := svc.schools.GetDepartmentByCode(ctx, key.DepartmentCode, exec)
	if err != nil {
		return school.Block{}, err
	}
	crs, err := svc.schools.GetCourseByCode(ctx, key.CourseCode, exec)
	if err != nil {
		return school.Block{}, err
	}
	yl, err := svc.schools.GetYearLevel(ctx, key.YearLevelID, exec)
	if err != nil {
		return school.Block{}, err
	}

	blk, err := svc.schools.FindBlock(ctx, key, prd.ID, false, exec)
	if err == nil {
		return blk, nil
	}
	if !errors.Is(err, school.ErrBlockNotFound) {
		return school.Block{}, err
	}
	return svc.schools.CreateBlock(ctx, school.Block{
		Name:           key.Name,
		DepartmentID:   dept.ID,
		CourseID:       crs.ID,
		YearLevelID:    yl.ID,
		SchoolPeriodID: prd.ID,
		Status:         school.StatusActive,
	}, exec)
}

// Rollover closes the active period and opens the next one. In a single
// transaction it backfills all-false attendance for approved events, archives
// the period and its blocks, creates the successor and ingests the new
// period's roster from src; any failure leaves the current period untouched.
func (svc *Service) Rollover(ctx context.Context, src RosterSource) (RolloverStats, error) {
	current, err := svc.repo.GetActivePeriod(ctx)
	if err != nil {
		return RolloverStats{}, err
	}
	next, err := current.Next()
	if err != nil {
		return RolloverStats{}, err
	}

	eventIDs, err := svc.events.QueryApprovedEventIDs(ctx, current.ID)
	if err != nil {
		return RolloverStats{}, err
	}

	tx, err := svc.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return RolloverStats{}, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	backfilled, err := svc.attendance.BackfillAbsences(ctx, eventIDs, tx)
	if err != nil {
		return RolloverStats{}, err
	}
	if err = svc.repo.ArchivePeriod(ctx, current.ID, tx); err != nil {
		return RolloverStats{}, err
	}
	if _, err = svc.schools.ArchiveBlocksByPeriod(ctx, current.ID, tx); err != nil {
		return RolloverStats{}, err
	}
	if next, err = svc.repo.CreatePeriod(ctx, next, tx); err != nil {
		return RolloverStats{}, err
	}
	sync, err := svc.syncRoster(ctx, next, src, false /* disableAbsent */, tx)
	if err != nil {
		return RolloverStats{}, errors.Wrap(err, "ingesting roster for new period")
	}
	if err = tx.Commit(); err != nil {
		return RolloverStats{}, errors.Wrap(err, "committing transaction")
	}
	svc.logger.Info("school period rolled over",
		"from", current.String(), "to", next.String(), "backfilled", backfilled)
	return RolloverStats{
		From:       current.String(),
		To:         next.String(),
		Backfilled: backfilled,
		Sync:       sync,
	}, nil
}

func (svc *Service) sendWelcomeEmail(first, last, addr string) {
	msg := &core.EmailMessage{
		To:      []mail.Address{{Name: first + " " + last, Address: addr}},
		Subject: "Welcome! Complete your registration",
		BodyStr: fmt.Sprintf(
			"Hi %s,\n\nYou have been enrolled from the registrar roster. Register with your ID number to activate your account.\n",
			first,
		),
	}
	svc.mailer.SendMessages(msg)
}

func (svc *Service) sendReactivationEmail(std student.Student) {
	msg := &core.EmailMessage{
		To:      []mail.Address{{Name: std.DisplayName(), Address: std.Email}},
		Subject: "Your enrollment is active again",
		BodyStr: fmt.Sprintf(
			"Hi %s,\n\nYour enrollment showed up on the latest registrar roster, so your account has been re-activated.\n",
			std.FirstName,
		),
	}
	svc.mailer.SendMessages(msg)
}
