package attendance

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/event"
	"github.com/trezcool/mahudhurio/core/student"
)

type (
	// EventStore is the slice of the event repository aggregation needs.
	EventStore interface {
		GetEventDetail(ctx context.Context, id int, exec ...core.DBExecutor) (event.EventDetail, error)
		GetEventDates(ctx context.Context, eventID int, exec ...core.DBExecutor) ([]event.EventDate, error)
		GetEventDate(ctx context.Context, id int, exec ...core.DBExecutor) (event.EventDate, error)
		QueryApprovedEventsForBlock(ctx context.Context, blockID int, exec ...core.DBExecutor) ([]event.EventDetail, error)
	}

	Service struct {
		repo     Repository
		events   EventStore
		students student.Repository
		logger   core.Logger
	}
)

func NewService(repo Repository, events EventStore, students student.Repository, logger core.Logger) *Service {
	return &Service{repo: repo, events: events, students: students, logger: logger}
}

// Sync upserts a batch of kiosk scan records. Records are processed
// independently: a bad record lands in the failed list with a reason and
// never blocks its neighbours. Existing records only have their non-nil
// slots overwritten, so two kiosks reporting different slots of the same
// day cannot erase each other's scans.
func (svc *Service) Sync(ctx context.Context, records []SyncRecord) (SyncResult, error) {
	var res SyncResult
	for _, rec := range records {
		rec.StudentID = core.CleanString(rec.StudentID)
		if rec.EventDateID == 0 || rec.StudentID == "" {
			res.Failed = append(res.Failed, FailedRecord{rec, "missing required fields: event_date_id and/or student_id_number"})
			continue
		}
		std, err := svc.students.GetActiveStudent(ctx, rec.StudentID)
		if err != nil {
			if errors.Is(err, student.ErrNotFound) {
				res.Failed = append(res.Failed, FailedRecord{rec, "student not found or not active"})
				continue
			}
			return res, err
		}
		if _, err = svc.events.GetEventDate(ctx, rec.EventDateID); err != nil {
			if core.IsNotFoundError(err) {
				res.Failed = append(res.Failed, FailedRecord{rec, "event date not found"})
				continue
			}
			return res, err
		}

		synced, err := svc.upsert(ctx, rec, std.BlockID)
		if err != nil {
			return res, err
		}
		res.Synced = append(res.Synced, synced)
	}
	svc.logger.Info("attendance sync done", "synced", len(res.Synced), "failed", len(res.Failed))
	return res, nil
}

func (svc *Service) upsert(ctx context.Context, rec SyncRecord, blockID int) (SyncedRecord, error) {
	existing, err := svc.repo.GetAttendance(ctx, rec.EventDateID, rec.StudentID)
	if err == nil {
		if err = svc.repo.UpdateAttendanceSlots(ctx, rec, blockID); err != nil {
			return SyncedRecord{}, err
		}
		return SyncedRecord{existing.ID, rec.EventDateID, rec.StudentID, blockID, ActionUpdated}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return SyncedRecord{}, err
	}

	att, err := svc.repo.CreateAttendance(ctx, Attendance{
		EventDateID: rec.EventDateID,
		StudentID:   rec.StudentID,
		BlockID:     blockID,
		AmIn:        attended(rec.AmIn),
		AmOut:       attended(rec.AmOut),
		PmIn:        attended(rec.PmIn),
		PmOut:       attended(rec.PmOut),
	})
	if err == nil {
		return SyncedRecord{att.ID, rec.EventDateID, rec.StudentID, blockID, ActionInserted}, nil
	}
	// another kiosk inserted the row between our lookup and insert
	if errors.Is(err, ErrAlreadyExists) {
		if existing, err = svc.repo.GetAttendance(ctx, rec.EventDateID, rec.StudentID); err != nil {
			return SyncedRecord{}, err
		}
		if err = svc.repo.UpdateAttendanceSlots(ctx, rec, blockID); err != nil {
			return SyncedRecord{}, err
		}
		return SyncedRecord{existing.ID, rec.EventDateID, rec.StudentID, blockID, ActionUpdated}, nil
	}
	return SyncedRecord{}, err
}

// BlockSummary aggregates one block's attendance over every date of an
// event. Sessions are counted against the sparse per-date schedule; the
// filter keeps students with at least one presence ("present"), at least
// one absence ("absent") or everyone ("all").
func (svc *Service) BlockSummary(ctx context.Context, eventID, blockID int, filter string) (BlockSummary, error) {
	if _, err := svc.events.GetEventDetail(ctx, eventID); err != nil {
		return BlockSummary{}, err
	}
	dates, err := svc.events.GetEventDates(ctx, eventID)
	if err != nil {
		return BlockSummary{}, err
	}
	out := BlockSummary{
		EventID:  eventID,
		BlockID:  blockID,
		Slots:    maskOf(dates),
		Students: []StudentBlockSummary{},
	}
	if len(dates) > 0 {
		sort.Slice(dates, func(i, j int) bool { return dates[i].Date.Before(dates[j].Date) })
		out.FirstEventDate = dates[0].Date.Format(event.DateLayout)
		out.LastEventDate = dates[len(dates)-1].Date.Format(event.DateLayout)
	}

	rows, err := svc.repo.QueryBlockRows(ctx, eventID, blockID)
	if err != nil {
		return BlockSummary{}, err
	}

	var (
		order   []string
		byID    = make(map[string]*StudentBlockSummary)
		newCntr = func() *int { n := 0; return &n }
	)
	for _, row := range rows {
		sum, ok := byID[row.StudentID]
		if !ok {
			sum = &StudentBlockSummary{
				StudentID:   row.StudentID,
				StudentName: displayName(row),
				Details:     []DateDetail{},
			}
			if out.Slots.AmIn {
				sum.AmInAttended, sum.AmInTotal = newCntr(), newCntr()
			}
			if out.Slots.AmOut {
				sum.AmOutAttended, sum.AmOutTotal = newCntr(), newCntr()
			}
			if out.Slots.PmIn {
				sum.PmInAttended, sum.PmInTotal = newCntr(), newCntr()
			}
			if out.Slots.PmOut {
				sum.PmOutAttended, sum.PmOutTotal = newCntr(), newCntr()
			}
			byID[row.StudentID] = sum
			order = append(order, row.StudentID)
		}

		required, got := row.tally()
		sum.PresentCount += got
		sum.AbsentCount += required - got
		sum.TotalSessions += required
		bumpSlotCounters(sum, row)
		sum.Details = append(sum.Details, dateDetail(row, out.Slots))
	}

	for _, id := range order {
		sum := byID[id]
		switch filter {
		case FilterPresent:
			if sum.PresentCount == 0 {
				continue
			}
		case FilterAbsent:
			if sum.AbsentCount == 0 {
				continue
			}
		}
		out.Students = append(out.Students, *sum)
	}
	return out, nil
}

// EventSummary aggregates the whole audience of an event, with optional
// department and year-level narrowing (zero means no filter), plus the
// facet values available for further narrowing.
func (svc *Service) EventSummary(ctx context.Context, eventID, departmentID, yearLevelID int) (EventSummary, error) {
	detail, err := svc.events.GetEventDetail(ctx, eventID)
	if err != nil {
		return EventSummary{}, err
	}
	rows, err := svc.repo.QueryEventRows(ctx, eventID, departmentID, yearLevelID)
	if err != nil {
		return EventSummary{}, err
	}

	out := EventSummary{
		EventID:     eventID,
		EventName:   detail.Name,
		EventStatus: detail.Status,
		Departments: []Facet{},
		YearLevels:  []Facet{},
		Blocks:      []Facet{},
		Students:    []StudentEventSummary{},
	}

	var (
		byID   = make(map[string]*StudentEventSummary)
		depts  = make(map[int]Facet)
		levels = make(map[int]Facet)
		blocks = make(map[int]Facet)
	)
	for _, row := range rows {
		depts[row.DepartmentID] = Facet{row.DepartmentID, row.DepartmentCode, row.DepartmentName}
		levels[row.YearLevelID] = Facet{ID: row.YearLevelID, Name: row.YearLevelName}
		blocks[row.BlockID] = Facet{ID: row.BlockID, Code: row.CourseCode, Name: row.BlockName}

		sum, ok := byID[row.StudentID]
		if !ok {
			sum = &StudentEventSummary{
				IDNumber:       row.StudentID,
				FullName:       displayName(row),
				BlockID:        row.BlockID,
				BlockName:      row.BlockName,
				CourseCode:     row.CourseCode,
				CourseName:     row.CourseName,
				DepartmentID:   row.DepartmentID,
				DepartmentCode: row.DepartmentCode,
				DepartmentName: row.DepartmentName,
				YearLevelID:    row.YearLevelID,
				YearLevelName:  row.YearLevelName,
				lastName:       row.LastName,
				firstName:      row.FirstName,
			}
			byID[row.StudentID] = sum
		}
		required, got := row.tally()
		sum.PresentCount += got
		sum.AbsentCount += required - got
		sum.TotalSessions += required
	}

	for _, sum := range byID {
		out.Students = append(out.Students, *sum)
	}
	sort.Slice(out.Students, func(i, j int) bool {
		a, b := out.Students[i], out.Students[j]
		if a.lastName != b.lastName {
			return a.lastName < b.lastName
		}
		return a.firstName < b.firstName
	})
	out.Departments = sortedFacets(depts, byCode)
	out.YearLevels = sortedFacets(levels, byName)
	out.Blocks = sortedFacets(blocks, byName)
	return out, nil
}

// StudentSummary tallies one student's record over every date of an event.
func (svc *Service) StudentSummary(ctx context.Context, eventID int, studentID string) (StudentSummary, error) {
	detail, err := svc.events.GetEventDetail(ctx, eventID)
	if err != nil {
		return StudentSummary{}, err
	}
	std, err := svc.students.GetActiveStudent(ctx, core.CleanString(studentID))
	if err != nil {
		return StudentSummary{}, err
	}
	dates, err := svc.events.GetEventDates(ctx, eventID)
	if err != nil {
		return StudentSummary{}, err
	}
	if len(dates) == 0 {
		return StudentSummary{}, event.ErrDateNotFound
	}
	mask := maskOf(dates)

	dateIDs := make([]int, len(dates))
	for i, d := range dates {
		dateIDs[i] = d.ID
	}
	atts, err := svc.repo.QueryStudentAttendance(ctx, std.IDNumber, dateIDs)
	if err != nil {
		return StudentSummary{}, err
	}
	attByDate := make(map[int]Attendance, len(atts))
	for _, att := range atts {
		attByDate[att.EventDateID] = att
	}

	out := StudentSummary{
		EventName:   detail.Name,
		StudentID:   std.IDNumber,
		StudentName: std.DisplayName(),
		Slots:       mask,
		Days:        make(map[string]*DaySummary, len(dates)),
	}
	for _, d := range dates {
		att, scanned := attByDate[d.ID]
		day := &DaySummary{}
		if mask.AmIn {
			day.AmInAttended, day.AmInTotal = tallySlot(d.AmIn, att.AmIn && scanned)
		}
		if mask.AmOut {
			day.AmOutAttended, day.AmOutTotal = tallySlot(d.AmOut, att.AmOut && scanned)
		}
		if mask.PmIn {
			day.PmInAttended, day.PmInTotal = tallySlot(d.PmIn, att.PmIn && scanned)
		}
		if mask.PmOut {
			day.PmOutAttended, day.PmOutTotal = tallySlot(d.PmOut, att.PmOut && scanned)
		}
		for _, cnt := range []*int{day.AmInTotal, day.AmOutTotal, day.PmInTotal, day.PmOutTotal} {
			if cnt != nil {
				day.TotalCount += *cnt
			}
		}
		for _, cnt := range []*int{day.AmInAttended, day.AmOutAttended, day.PmInAttended, day.PmOutAttended} {
			if cnt != nil {
				day.PresentCount += *cnt
			}
		}
		day.AbsentCount = day.TotalCount - day.PresentCount
		out.Days[d.Date.Format(event.DateLayout)] = day
	}
	return out, nil
}

// StudentSchedule lists the approved events of the student's block whose
// date span covers onDate, with the student's scan state for each date.
func (svc *Service) StudentSchedule(ctx context.Context, studentID string, onDate time.Time) ([]ScheduleEntry, error) {
	std, err := svc.students.GetStudent(ctx, core.CleanString(studentID))
	if err != nil {
		return nil, err
	}
	evs, err := svc.events.QueryApprovedEventsForBlock(ctx, std.BlockID)
	if err != nil {
		return nil, err
	}

	today := onDate.Format(event.DateLayout)
	entries := []ScheduleEntry{}
	for _, ev := range evs {
		if len(ev.Dates) == 0 {
			continue
		}
		evDates := append([]string(nil), ev.Dates...)
		sort.Strings(evDates)
		if today < evDates[0] || today > evDates[len(evDates)-1] {
			continue
		}

		dates, err := svc.events.GetEventDates(ctx, ev.ID)
		if err != nil {
			return nil, err
		}
		dateIDs := make([]int, len(dates))
		for i, d := range dates {
			dateIDs[i] = d.ID
		}
		atts, err := svc.repo.QueryStudentAttendance(ctx, std.IDNumber, dateIDs)
		if err != nil {
			return nil, err
		}
		attByDate := make(map[int]Attendance, len(atts))
		for _, att := range atts {
			attByDate[att.EventDateID] = att
		}

		entry := ScheduleEntry{
			EventID:    ev.ID,
			EventName:  ev.Name,
			EventDates: evDates,
			Attendance: make(map[string]SlotFlags, len(dates)),
		}
		for _, d := range dates {
			att := attByDate[d.ID] // zero value reads as all absent
			entry.Attendance[d.Date.Format(event.DateLayout)] = SlotFlags{att.AmIn, att.AmOut, att.PmIn, att.PmOut}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// maskOf reports which slots appear on at least one date.
func maskOf(dates []event.EventDate) SlotMask {
	var m SlotMask
	for _, d := range dates {
		m.AmIn = m.AmIn || d.AmIn != nil
		m.AmOut = m.AmOut || d.AmOut != nil
		m.PmIn = m.PmIn || d.PmIn != nil
		m.PmOut = m.PmOut || d.PmOut != nil
	}
	return m
}

func tallySlot(sched *string, got bool) (attended, total *int) {
	a, t := 0, 0
	if sched != nil {
		t = 1
		if got {
			a = 1
		}
	}
	return &a, &t
}

func bumpSlotCounters(sum *StudentBlockSummary, row JoinedRow) {
	bump := func(sched *string, att *bool, attCnt, totCnt *int) {
		if sched == nil || totCnt == nil {
			return
		}
		*totCnt++
		if attended(att) {
			*attCnt++
		}
	}
	bump(row.SchedAmIn, row.AttAmIn, sum.AmInAttended, sum.AmInTotal)
	bump(row.SchedAmOut, row.AttAmOut, sum.AmOutAttended, sum.AmOutTotal)
	bump(row.SchedPmIn, row.AttPmIn, sum.PmInAttended, sum.PmInTotal)
	bump(row.SchedPmOut, row.AttPmOut, sum.PmOutAttended, sum.PmOutTotal)
}

// dateDetail renders one date line; slot timestamps join the date with the
// scheduled time ("2006-01-02T15:04:05") when the student attended.
func dateDetail(row JoinedRow, mask SlotMask) DateDetail {
	required, got := row.tally()
	d := DateDetail{
		DateID:           row.EventDateID,
		Date:             row.Date.Format(event.DateLayout),
		SessionsRequired: required,
		SessionsAttended: got,
	}
	stamp := func(sched *string, att *bool) (*string, *bool) {
		ok := attended(att)
		var ts *string
		if ok && sched != nil {
			s := d.Date + "T" + *sched
			ts = &s
		}
		return ts, &ok
	}
	if mask.AmIn {
		d.AmIn, d.AmInAttended = stamp(row.SchedAmIn, row.AttAmIn)
	}
	if mask.AmOut {
		d.AmOut, d.AmOutAttended = stamp(row.SchedAmOut, row.AttAmOut)
	}
	if mask.PmIn {
		d.PmIn, d.PmInAttended = stamp(row.SchedPmIn, row.AttPmIn)
	}
	if mask.PmOut {
		d.PmOut, d.PmOutAttended = stamp(row.SchedPmOut, row.AttPmOut)
	}
	return d
}

func displayName(row JoinedRow) string {
	return student.Student{
		FirstName:  row.FirstName,
		MiddleName: row.MiddleName,
		LastName:   row.LastName,
		Suffix:     row.Suffix,
	}.DisplayName()
}

func sortedFacets(m map[int]Facet, less func(a, b Facet) bool) []Facet {
	out := make([]Facet, 0, len(m))
	for _, f := range m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byCode(a, b Facet) bool { return strings.Compare(a.Code, b.Code) < 0 }
func byName(a, b Facet) bool { return strings.Compare(a.Name, b.Name) < 0 }
