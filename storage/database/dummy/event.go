package dummydb

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/event"
)

type eventRepository struct {
	db *DB
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(db *DB) *eventRepository {
	return &eventRepository{db: db}
}

func (repo *eventRepository) GetEventName(ctx context.Context, id int, exec ...core.DBExecutor) (event.EventName, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if name, ok := repo.db.eventNames[id]; ok {
		return *name, nil
	}
	return event.EventName{}, event.ErrEventNameNotFound
}

func (repo *eventRepository) GetEvent(ctx context.Context, id int, exec ...core.DBExecutor) (event.Event, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if ev, ok := repo.db.events[id]; ok {
		return *ev, nil
	}
	return event.Event{}, event.ErrNotFound
}

func (repo *eventRepository) CreateEvent(ctx context.Context, ev event.Event, exec ...core.DBExecutor) (event.Event, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	ev.ID = repo.db.nextID()
	repo.db.events[ev.ID] = &ev
	return ev, nil
}

func (repo *eventRepository) UpdateEvent(ctx context.Context, ev event.Event, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	existing, ok := repo.db.events[ev.ID]
	if !ok {
		return event.ErrNotFound
	}
	existing.EventNameID = ev.EventNameID
	existing.Venue = ev.Venue
	existing.Description = ev.Description
	return nil
}

func (repo *eventRepository) UpdateEventStatus(ctx context.Context, id int, status, approvedBy string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	ev, ok := repo.db.events[id]
	if !ok {
		return event.ErrNotFound
	}
	ev.Status = status
	if approvedBy != "" {
		ev.ApprovedBy = approvedBy
	}
	return nil
}

func (repo *eventRepository) QueryDuplicateCandidates(ctx context.Context, eventNameID int, venue string, excludeID int, exec ...core.DBExecutor) ([]event.DuplicateCandidate, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	out := make([]event.DuplicateCandidate, 0)
	for _, ev := range repo.db.events {
		if ev.ID == excludeID || ev.EventNameID != eventNameID || !strings.EqualFold(ev.Venue, venue) {
			continue
		}
		if ev.Status != event.StatusPending && ev.Status != event.StatusApproved {
			continue
		}
		cand := event.DuplicateCandidate{EventID: ev.ID, Dates: []string{}, BlockIDs: []string{}}
		for _, d := range repo.db.eventDates {
			if d.EventID == ev.ID {
				cand.Dates = append(cand.Dates, d.Date.Format(event.DateLayout))
			}
		}
		for _, eb := range repo.db.eventBlocks {
			if eb.EventID == ev.ID {
				cand.BlockIDs = append(cand.BlockIDs, strconv.Itoa(eb.BlockID))
			}
		}
		sort.Strings(cand.Dates)
		sort.Strings(cand.BlockIDs)
		out = append(out, cand)
	}
	return out, nil
}

func (repo *eventRepository) GetEventDates(ctx context.Context, eventID int, exec ...core.DBExecutor) ([]event.EventDate, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.queryDates(eventID), nil
}

// queryDates must be called with the lock held.
func (repo *eventRepository) queryDates(eventID int) []event.EventDate {
	dates := make([]event.EventDate, 0)
	for _, d := range repo.db.eventDates {
		if d.EventID == eventID {
			dates = append(dates, *d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Date.Before(dates[j].Date) })
	return dates
}

func (repo *eventRepository) GetEventDate(ctx context.Context, id int, exec ...core.DBExecutor) (event.EventDate, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if d, ok := repo.db.eventDates[id]; ok {
		return *d, nil
	}
	return event.EventDate{}, event.ErrDateNotFound
}

func (repo *eventRepository) CreateEventDates(ctx context.Context, dates []event.EventDate, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.db.FailCreateEventDates; err != nil {
		return err
	}
	for _, d := range dates {
		d := d
		d.ID = repo.db.nextID()
		repo.db.eventDates[d.ID] = &d
	}
	return nil
}

func (repo *eventRepository) DeleteEventDates(ctx context.Context, eventID int, exec ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n := 0
	for id, d := range repo.db.eventDates {
		if d.EventID == eventID {
			delete(repo.db.eventDates, id)
			n++
		}
	}
	return n, nil
}

func (repo *eventRepository) GetEventBlockIDs(ctx context.Context, eventID int, exec ...core.DBExecutor) ([]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.queryBlockIDs(eventID), nil
}

// queryBlockIDs must be called with the lock held.
func (repo *eventRepository) queryBlockIDs(eventID int) []int {
	var ids []int
	for _, eb := range repo.db.eventBlocks {
		if eb.EventID == eventID {
			ids = append(ids, eb.BlockID)
		}
	}
	sort.Ints(ids)
	return ids
}

func (repo *eventRepository) CreateEventBlocks(ctx context.Context, eventID int, blockIDs []int, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.db.FailCreateEventBlocks; err != nil {
		return err
	}
	for _, blockID := range blockIDs {
		id := repo.db.nextID()
		repo.db.eventBlocks[id] = &eventBlock{ID: id, EventID: eventID, BlockID: blockID}
	}
	return nil
}

func (repo *eventRepository) DeleteEventBlocks(ctx context.Context, eventID int, exec ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n := 0
	for id, eb := range repo.db.eventBlocks {
		if eb.EventID == eventID {
			delete(repo.db.eventBlocks, id)
			n++
		}
	}
	return n, nil
}

func (repo *eventRepository) ArchivePastEvents(ctx context.Context, before time.Time, exec ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n := 0
	for _, ev := range repo.db.events {
		if ev.Status != event.StatusApproved {
			continue
		}
		dates := repo.queryDates(ev.ID)
		if len(dates) == 0 {
			continue
		}
		if dates[len(dates)-1].Date.Before(before) {
			ev.Status = event.StatusArchived
			n++
		}
	}
	return n, nil
}

func (repo *eventRepository) QueryApprovedEventIDs(ctx context.Context, periodID int, exec ...core.DBExecutor) ([]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var ids []int
	for _, ev := range repo.db.events {
		if ev.SchoolPeriodID == periodID && ev.Status == event.StatusApproved {
			ids = append(ids, ev.ID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (repo *eventRepository) QueryApprovedEventsForBlock(ctx context.Context, blockID int, exec ...core.DBExecutor) ([]event.EventDetail, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var ids []int
	for _, eb := range repo.db.eventBlocks {
		ev, ok := repo.db.events[eb.EventID]
		if ok && eb.BlockID == blockID && ev.Status == event.StatusApproved {
			ids = append(ids, ev.ID)
		}
	}
	sort.Ints(ids)

	details := make([]event.EventDetail, 0, len(ids))
	for _, id := range ids {
		detail, err := repo.getDetail(id)
		if err != nil {
			return nil, err
		}
		details = append(details, detail)
	}
	return details, nil
}

func (repo *eventRepository) QueryEvents(ctx context.Context, filter event.QueryFilter, exec ...core.DBExecutor) ([]event.EventDetail, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	var ids []int
	for _, ev := range repo.db.events {
		if ev.Status == event.StatusDeleted {
			continue
		}
		if search != "" {
			name := repo.db.eventNames[ev.EventNameID]
			if name == nil || (!strings.Contains(strings.ToLower(name.Name), search) &&
				!strings.Contains(strings.ToLower(ev.Venue), search)) {
				continue
			}
		}
		ids = append(ids, ev.ID)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))

	details := make([]event.EventDetail, 0, len(ids))
	for _, id := range ids {
		detail, err := repo.getDetail(id)
		if err != nil {
			return nil, err
		}
		details = append(details, detail)
	}
	return details, nil
}

func (repo *eventRepository) GetEventDetail(ctx context.Context, id int, exec ...core.DBExecutor) (event.EventDetail, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.getDetail(id)
}

// getDetail must be called with the lock held.
func (repo *eventRepository) getDetail(id int) (event.EventDetail, error) {
	ev, ok := repo.db.events[id]
	if !ok {
		return event.EventDetail{}, event.ErrNotFound
	}

	detail := event.EventDetail{
		ID:          ev.ID,
		Venue:       ev.Venue,
		Description: ev.Description,
		Status:      ev.Status,
		Dates:       []string{},
		BlockIDs:    []int{},
		BlockNames:  []string{},
	}
	if name, ok := repo.db.eventNames[ev.EventNameID]; ok {
		detail.Name = name.Name
	}
	if adm, ok := repo.db.admins[ev.CreatedBy]; ok {
		detail.CreatedByName = adm.DisplayName()
	}
	if adm, ok := repo.db.admins[ev.ApprovedBy]; ok {
		detail.ApprovedByName = adm.DisplayName()
	}

	dates := repo.queryDates(ev.ID)
	for _, d := range dates {
		detail.Dates = append(detail.Dates, d.Date.Format(event.DateLayout))
	}
	if len(dates) > 0 {
		detail.AmIn = dates[0].AmIn
		detail.AmOut = dates[0].AmOut
		detail.PmIn = dates[0].PmIn
		detail.PmOut = dates[0].PmOut
		detail.Duration = dates[0].Duration
	}
	for _, blockID := range repo.queryBlockIDs(ev.ID) {
		detail.BlockIDs = append(detail.BlockIDs, blockID)
		if blk, ok := repo.db.blocks[blockID]; ok {
			detail.BlockNames = append(detail.BlockNames, blk.Name)
		}
	}
	return detail, nil
}
