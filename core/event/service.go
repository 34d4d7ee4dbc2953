package event

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/admin"
	"github.com/trezcool/mahudhurio/core/period"
)

var (
	ErrNotPending     = core.NewStateError("event is not pending approval")
	ErrApprovalRights = core.NewStateError("only a super admin may approve events")
)

// broadcast event name, kept in sync with the web client's listener.
const approvedEventTopic = "newApprovedEvent"

type (
	// AttendanceStore is the slice of the attendance repository the event
	// lifecycle needs for the edit cascade.
	AttendanceStore interface {
		DeleteAttendanceByEvent(ctx context.Context, eventID int, exec ...core.DBExecutor) (int, error)
		CountAttendanceByEvent(ctx context.Context, eventID int, exec ...core.DBExecutor) (int, error)
	}

	Service struct {
		db          core.DB
		repo        Repository
		admins      admin.Repository
		periods     period.Repository
		attendance  AttendanceStore
		broadcaster core.Broadcaster
		logger      core.Logger
	}
)

func NewService(
	db core.DB,
	repo Repository,
	admins admin.Repository,
	periods period.Repository,
	attendance AttendanceStore,
	broadcaster core.Broadcaster,
	logger core.Logger,
) *Service {
	return &Service{
		db:          db,
		repo:        repo,
		admins:      admins,
		periods:     periods,
		attendance:  attendance,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Create registers a new event with its dates and block audience in one
// transaction. Events created by a super admin land directly in Approved
// state and are announced to subscribed clients.
func (svc *Service) Create(ctx context.Context, in EventInput) (EventDetail, error) {
	if err := in.Validate(); err != nil {
		return EventDetail{}, err
	}
	prd, err := svc.periods.GetActivePeriod(ctx)
	if err != nil {
		if errors.Is(err, period.ErrNoActivePeriod) {
			return EventDetail{}, ErrNoActivePeriod
		}
		return EventDetail{}, err
	}
	name, err := svc.repo.GetEventName(ctx, in.EventNameID)
	if err != nil {
		return EventDetail{}, err
	}

	dates := normalizeDateSet(in.Dates)
	blockIDs, blockKeys := normalizeBlockSet(in.BlockIDs)
	if err = svc.checkDuplicate(ctx, name.ID, in.Venue, 0, dates, blockKeys); err != nil {
		return EventDetail{}, err
	}

	actor, err := svc.admins.GetAdmin(ctx, in.ActorID)
	if err != nil {
		return EventDetail{}, err
	}
	ev := Event{
		EventNameID:    name.ID,
		SchoolPeriodID: prd.ID,
		Venue:          in.Venue,
		Description:    in.Description,
		ScanPersonnel:  defaultScanPersonnel,
		CreatedBy:      actor.IDNumber,
		Status:         StatusPending,
	}
	if actor.IsSuperAdmin() {
		ev.Status = StatusApproved
		ev.ApprovedBy = actor.IDNumber
	}

	tx, err := svc.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return EventDetail{}, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	if ev, err = svc.repo.CreateEvent(ctx, ev, tx); err != nil {
		return EventDetail{}, err
	}
	if err = svc.repo.CreateEventDates(ctx, svc.expandDates(ev.ID, dates, in), tx); err != nil {
		return EventDetail{}, err
	}
	if err = svc.repo.CreateEventBlocks(ctx, ev.ID, blockIDs, tx); err != nil {
		return EventDetail{}, err
	}
	if err = tx.Commit(); err != nil {
		return EventDetail{}, errors.Wrap(err, "committing transaction")
	}

	if ev.Status == StatusApproved {
		svc.announce(ApprovedEventNotice{
			EventID:       ev.ID,
			EventNameID:   name.ID,
			Name:          name.Name,
			Venue:         ev.Venue,
			Dates:         dates,
			BlockIDs:      blockIDs,
			CreatedByName: actor.DisplayName(),
		})
	}
	return svc.repo.GetEventDetail(ctx, ev.ID)
}

// Edit replaces an event's details, dates and block audience wholesale.
// The rewrite is destructive: attendance recorded against the old schedule
// is discarded inside the same transaction, and nothing is kept unless the
// whole cascade lands.
func (svc *Service) Edit(ctx context.Context, id int, in EventInput) (EventDetail, error) {
	if err := in.Validate(); err != nil {
		return EventDetail{}, err
	}
	ev, err := svc.repo.GetEvent(ctx, id)
	if err != nil {
		return EventDetail{}, err
	}
	if ev.Status == StatusDeleted {
		return EventDetail{}, ErrNotFound
	}
	name, err := svc.repo.GetEventName(ctx, in.EventNameID)
	if err != nil {
		return EventDetail{}, err
	}

	dates := normalizeDateSet(in.Dates)
	blockIDs, blockKeys := normalizeBlockSet(in.BlockIDs)
	if err = svc.checkDuplicate(ctx, name.ID, in.Venue, ev.ID, dates, blockKeys); err != nil {
		return EventDetail{}, err
	}

	tx, err := svc.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return EventDetail{}, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	if _, err = svc.attendance.DeleteAttendanceByEvent(ctx, ev.ID, tx); err != nil {
		return EventDetail{}, err
	}
	// dates must not go away while attendance still references them
	left, err := svc.attendance.CountAttendanceByEvent(ctx, ev.ID, tx)
	if err != nil {
		return EventDetail{}, err
	}
	if left > 0 {
		return EventDetail{}, errors.Errorf("event %d still has %d attendance records after purge", ev.ID, left)
	}
	if _, err = svc.repo.DeleteEventDates(ctx, ev.ID, tx); err != nil {
		return EventDetail{}, err
	}
	if _, err = svc.repo.DeleteEventBlocks(ctx, ev.ID, tx); err != nil {
		return EventDetail{}, err
	}

	ev.EventNameID = name.ID
	ev.Venue = in.Venue
	ev.Description = in.Description
	if err = svc.repo.UpdateEvent(ctx, ev, tx); err != nil {
		return EventDetail{}, err
	}
	if err = svc.repo.CreateEventDates(ctx, svc.expandDates(ev.ID, dates, in), tx); err != nil {
		return EventDetail{}, err
	}
	if err = svc.repo.CreateEventBlocks(ctx, ev.ID, blockIDs, tx); err != nil {
		return EventDetail{}, err
	}
	if err = tx.Commit(); err != nil {
		return EventDetail{}, errors.Wrap(err, "committing transaction")
	}
	return svc.repo.GetEventDetail(ctx, ev.ID)
}

// Approve flips a Pending event to Approved and announces it.
func (svc *Service) Approve(ctx context.Context, id int, actorID string) (EventDetail, error) {
	actor, err := svc.admins.GetAdmin(ctx, core.CleanString(actorID))
	if err != nil {
		return EventDetail{}, err
	}
	if !actor.IsSuperAdmin() {
		return EventDetail{}, ErrApprovalRights
	}
	ev, err := svc.repo.GetEvent(ctx, id)
	if err != nil {
		return EventDetail{}, err
	}
	if ev.Status != StatusPending {
		return EventDetail{}, ErrNotPending
	}
	// an event stripped of its dates or audience is rejected, not approved
	dates, err := svc.repo.GetEventDates(ctx, ev.ID)
	if err != nil {
		return EventDetail{}, err
	}
	blockIDs, err := svc.repo.GetEventBlockIDs(ctx, ev.ID)
	if err != nil {
		return EventDetail{}, err
	}
	if len(dates) == 0 || len(blockIDs) == 0 {
		return EventDetail{}, ErrInconsistentEvent
	}
	if err = svc.repo.UpdateEventStatus(ctx, ev.ID, StatusApproved, actor.IDNumber); err != nil {
		return EventDetail{}, err
	}

	detail, err := svc.repo.GetEventDetail(ctx, ev.ID)
	if err != nil {
		return EventDetail{}, err
	}
	svc.announce(ApprovedEventNotice{
		EventID:       ev.ID,
		EventNameID:   ev.EventNameID,
		Name:          detail.Name,
		Venue:         detail.Venue,
		Dates:         detail.Dates,
		BlockIDs:      detail.BlockIDs,
		CreatedByName: detail.CreatedByName,
	})
	return detail, nil
}

// Delete soft-deletes an event. History stays queryable for reporting.
func (svc *Service) Delete(ctx context.Context, id int) error {
	ev, err := svc.repo.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if ev.Status == StatusDeleted {
		return ErrNotFound
	}
	return svc.repo.UpdateEventStatus(ctx, ev.ID, StatusDeleted, "")
}

// SweepArchived archives approved events whose last date has passed.
func (svc *Service) SweepArchived(ctx context.Context) (int, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	n, err := svc.repo.ArchivePastEvents(ctx, today)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		svc.logger.Info("archived past events", "count", n)
	}
	return n, nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]EventDetail, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryEvents(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id int) (EventDetail, error) {
	return svc.repo.GetEventDetail(ctx, id)
}

// checkDuplicate rejects input whose (name, venue, date set, block set)
// matches an existing Pending or Approved event.
func (svc *Service) checkDuplicate(ctx context.Context, nameID int, venue string, excludeID int, dates, blockKeys []string) error {
	candidates, err := svc.repo.QueryDuplicateCandidates(ctx, nameID, venue, excludeID)
	if err != nil {
		return err
	}
	for _, cand := range candidates {
		if setsEqual(cand.Dates, dates) && setsEqual(cand.BlockIDs, blockKeys) {
			return ErrDuplicateEvent
		}
	}
	return nil
}

// expandDates applies the input's slot template to every date.
func (svc *Service) expandDates(eventID int, dates []string, in EventInput) []EventDate {
	out := make([]EventDate, 0, len(dates))
	for _, d := range dates {
		day, _ := time.Parse(DateLayout, d) // validated upstream
		out = append(out, EventDate{
			EventID:  eventID,
			Date:     day,
			AmIn:     in.AmIn,
			AmOut:    in.AmOut,
			PmIn:     in.PmIn,
			PmOut:    in.PmOut,
			Duration: in.Duration,
		})
	}
	return out
}

func (svc *Service) announce(notice ApprovedEventNotice) {
	svc.broadcaster.Publish(core.AllEventsChannel, approvedEventTopic, notice)
	for _, blockID := range notice.BlockIDs {
		svc.broadcaster.Publish(core.BlockChannel(blockID), approvedEventTopic, notice)
	}
}
