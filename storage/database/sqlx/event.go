package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/event"
)

type (
	eventRow struct {
		ID             int            `db:"id"`
		EventNameID    int            `db:"event_name_id"`
		SchoolPeriodID int            `db:"school_period_id"`
		Venue          string         `db:"venue"`
		Description    string         `db:"description"`
		ScanPersonnel  string         `db:"scan_personnel"`
		CreatedBy      string         `db:"created_by"`
		ApprovedBy     sql.NullString `db:"approved_by"`
		Status         string         `db:"status"`
	}

	eventNameRow struct {
		ID     int    `db:"id"`
		Name   string `db:"name"`
		Status string `db:"status"`
	}

	eventDateRow struct {
		ID       int           `db:"id"`
		EventID  int           `db:"event_id"`
		Date     time.Time     `db:"event_date"`
		AmIn     *string       `db:"am_in"`
		AmOut    *string       `db:"am_out"`
		PmIn     *string       `db:"pm_in"`
		PmOut    *string       `db:"pm_out"`
		Duration sql.NullInt64 `db:"duration"`
	}

	duplicateRow struct {
		EventID int            `db:"event_id"`
		Dates   sql.NullString `db:"dates"`
		Blocks  sql.NullString `db:"blocks"`
	}

	eventHeadRow struct {
		ID             int            `db:"id"`
		Name           string         `db:"name"`
		Venue          string         `db:"venue"`
		Description    string         `db:"description"`
		Status         string         `db:"status"`
		CreatedByName  string         `db:"created_by_name"`
		ApprovedByName sql.NullString `db:"approved_by_name"`
	}

	eventBlockRow struct {
		ID   int    `db:"id"`
		Name string `db:"name"`
	}
)

func (r eventRow) toEvent() event.Event {
	return event.Event{
		ID:             r.ID,
		EventNameID:    r.EventNameID,
		SchoolPeriodID: r.SchoolPeriodID,
		Venue:          r.Venue,
		Description:    r.Description,
		ScanPersonnel:  r.ScanPersonnel,
		CreatedBy:      r.CreatedBy,
		ApprovedBy:     r.ApprovedBy.String,
		Status:         r.Status,
	}
}

func (r eventDateRow) toEventDate() event.EventDate {
	d := event.EventDate{
		ID:      r.ID,
		EventID: r.EventID,
		Date:    r.Date,
		AmIn:    r.AmIn,
		AmOut:   r.AmOut,
		PmIn:    r.PmIn,
		PmOut:   r.PmOut,
	}
	if r.Duration.Valid {
		n := int(r.Duration.Int64)
		d.Duration = &n
	}
	return d
}

var eventCols = []string{
	"id", "event_name_id", "school_period_id", "venue", "description",
	"scan_personnel", "created_by", "approved_by", "status",
}

type eventRepository struct {
	exec core.DBExecutor
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(exec core.DBExecutor) *eventRepository {
	return &eventRepository{exec: exec}
}

func (repo eventRepository) GetEventName(ctx context.Context, id int, exec ...core.DBExecutor) (event.EventName, error) {
	var rows []eventNameRow
	qb := psql.Select("id", "name", "status").
		From("event_names").
		Where("id = ?", id)
	if err := selectAll(ctx, getExec(repo.exec, exec), &rows, qb); err != nil {
		return event.EventName{}, errors.Wrap(err, "getting event name")
	}
	if len(rows) == 0 {
		return event.EventName{}, event.ErrEventNameNotFound
	}
	r := rows[0]
	return event.EventName{ID: r.ID, Name: r.Name, Status: r.Status}, nil
}

func (repo eventRepository) GetEvent(ctx context.Context, id int, exec ...core.DBExecutor) (event.Event, error) {
	var rows []eventRow
	qb := psql.Select(eventCols...).
		From("events").
		Where("id = ?", id)
	if err := selectAll(ctx, getExec(repo.exec, exec), &rows, qb); err != nil {
		return event.Event{}, errors.Wrap(err, "getting event")
	}
	if len(rows) == 0 {
		return event.Event{}, event.ErrNotFound
	}
	return rows[0].toEvent(), nil
}

func (repo eventRepository) CreateEvent(ctx context.Context, ev event.Event, exec ...core.DBExecutor) (event.Event, error) {
	qb := psql.Insert("events").
		Columns("event_name_id", "school_period_id", "venue", "description", "scan_personnel", "created_by", "approved_by", "status").
		Values(ev.EventNameID, ev.SchoolPeriodID, ev.Venue, ev.Description, ev.ScanPersonnel, ev.CreatedBy, nullableStr(ev.ApprovedBy), ev.Status).
		Suffix("RETURNING id")
	id, err := queryIntRow(ctx, getExec(repo.exec, exec), qb)
	if err != nil {
		return event.Event{}, errors.Wrap(err, "inserting event")
	}
	ev.ID = id
	return ev, nil
}

func (repo eventRepository) UpdateEvent(ctx context.Context, ev event.Event, exec ...core.DBExecutor) error {
	qb := psql.Update("events").
		Set("event_name_id", ev.EventNameID).
		Set("venue", ev.Venue).
		Set("description", ev.Description).
		Where("id = ?", ev.ID)
	n, err := execAffected(ctx, getExec(repo.exec, exec), qb)
	if err != nil {
		return errors.Wrap(err, "updating event")
	}
	if n == 0 {
		return event.ErrNotFound
	}
	return nil
}

func (repo eventRepository) UpdateEventStatus(ctx context.Context, id int, status, approvedBy string, exec ...core.DBExecutor) error {
	qb := psql.Update("events").
		Set("status", status).
		Where("id = ?", id)
	if approvedBy != "" {
		qb = qb.Set("approved_by", approvedBy)
	}
	n, err := execAffected(ctx, getExec(repo.exec, exec), qb)
	if err != nil {
		return errors.Wrap(err, "updating event status")
	}
	if n == 0 {
		return event.ErrNotFound
	}
	return nil
}

func (repo eventRepository) QueryDuplicateCandidates(ctx context.Context, eventNameID int, venue string, excludeID int, exec ...core.DBExecutor) ([]event.DuplicateCandidate, error) {
	var rows []duplicateRow
	qb := psql.Select(
		"e.id AS event_id",
		"(SELECT string_agg(to_char(ed.event_date, 'YYYY-MM-DD'), ',' ORDER BY to_char(ed.event_date, 'YYYY-MM-DD')) FROM event_dates ed WHERE ed.event_id = e.id) AS dates",
		"(SELECT string_agg(eb.block_id::text, ',' ORDER BY eb.block_id::text) FROM event_blocks eb WHERE eb.event_id = e.id) AS blocks",
	).
		From("events e").
		Where("e.event_name_id = ?", eventNameID).
		Where("LOWER(e.venue) = LOWER(?)", venue).
		Where(sq.Eq{"e.status": []string{event.StatusPending, event.StatusApproved}}).
		Where("e.id <> ?", excludeID)
	if err := selectAll(ctx, getExec(repo.exec, exec), &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying duplicate candidates")
	}
	out := make([]event.DuplicateCandidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, event.DuplicateCandidate{
			EventID:  r.EventID,
			Dates:    splitAgg(r.Dates),
			BlockIDs: splitAgg(r.Blocks),
		})
	}
	return out, nil
}

func (repo eventRepository) GetEventDates(ctx context.Context, eventID int, exec ...core.DBExecutor) ([]event.EventDate, error) {
	var rows []eventDateRow
	qb := psql.Select("id", "event_id", "event_date", "am_in", "am_out", "pm_in", "pm_out", "duration").
		From("event_dates").
		Where("event_id = ?", eventID).
		OrderBy("event_date")
	if err := selectAll(ctx, getExec(repo.exec, exec), &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying event dates")
	}
	dates := make([]event.EventDate, 0, len(rows))
	for _, r := range rows {
		dates = append(dates, r.toEventDate())
	}
	return dates, nil
}

func (repo eventRepository) GetEventDate(ctx context.Context, id int, exec ...core.DBExecutor) (event.EventDate, error) {
	var rows []eventDateRow
	qb := psql.Select("id", "event_id", "event_date", "am_in", "am_out", "pm_in", "pm_out", "duration").
		From("event_dates").
		Where("id = ?", id)
	if err := selectAll(ctx, getExec(repo.exec, exec), &rows, qb); err != nil {
		return event.EventDate{}, errors.Wrap(err, "getting event date")
	}
	if len(rows) == 0 {
		return event.EventDate{}, event.ErrDateNotFound
	}
	return rows[0].toEventDate(), nil
}

func (repo eventRepository) CreateEventDates(ctx context.Context, dates []event.EventDate, exec ...core.DBExecutor) error {
	if len(dates) == 0 {
		return nil
	}
	qb := psql.Insert("event_dates").
		Columns("event_id", "event_date", "am_in", "am_out", "pm_in", "pm_out", "duration")
	for _, d := range dates {
		var dur interface{}
		if d.Duration != nil {
			dur = *d.Duration
		}
		qb = qb.Values(d.EventID, d.Date, d.AmIn, d.AmOut, d.PmIn, d.PmOut, dur)
	}
	if _, err := execAffected(ctx, getExec(repo.exec, exec), qb); err != nil {
		return errors.Wrap(err, "inserting event dates")
	}
	return nil
}

func (repo eventRepository) DeleteEventDates(ctx context.Context, eventID int, exec ...core.DBExecutor) (int, error) {
	qb := psql.Delete("event_dates").Where("event_id = ?", eventID)
	n, err := execAffected(ctx, getExec(repo.exec, exec), qb)
	if err != nil {
		return 0, errors.Wrap(err, "deleting event dates")
	}
	return n, nil
}

func (repo eventRepository) GetEventBlockIDs(ctx context.Context, eventID int, exec ...core.DBExecutor) ([]int, error) {
	qb := psql.Select("block_id").
		From("event_blocks").
		Where("event_id = ?", eventID).
		OrderBy("block_id")
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	rows, err := getExec(repo.exec, exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying event blocks")
	}
	defer func() { _ = rows.Close() }()
	var ids []int
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning event block")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (repo eventRepository) CreateEventBlocks(ctx context.Context, eventID int, blockIDs []int, exec ...core.DBExecutor) error {
	if len(blockIDs) == 0 {
		return nil
	}
	qb := psql.Insert("event_blocks").Columns("event_id", "block_id")
	for _, id := range blockIDs {
		qb = qb.Values(eventID, id)
	}
	if _, err := execAffected(ctx, getExec(repo.exec, exec), qb); err != nil {
		return errors.Wrap(err, "inserting event blocks")
	}
	return nil
}

func (repo eventRepository) DeleteEventBlocks(ctx context.Context, eventID int, exec ...core.DBExecutor) (int, error) {
	qb := psql.Delete("event_blocks").Where("event_id = ?", eventID)
	n, err := execAffected(ctx, getExec(repo.exec, exec), qb)
	if err != nil {
		return 0, errors.Wrap(err, "deleting event blocks")
	}
	return n, nil
}

func (repo eventRepository) ArchivePastEvents(ctx context.Context, before time.Time, exec ...core.DBExecutor) (int, error) {
	qb := psql.Update("events").
		Set("status", event.StatusArchived).
		Where("status = ?", event.StatusApproved).
		Where("id IN (SELECT event_id FROM event_dates GROUP BY event_id HAVING MAX(event_date) < ?)", before)
	n, err := execAffected(ctx, getExec(repo.exec, exec), qb)
	if err != nil {
		return 0, errors.Wrap(err, "archiving past events")
	}
	return n, nil
}

func (repo eventRepository) QueryApprovedEventIDs(ctx context.Context, periodID int, exec ...core.DBExecutor) ([]int, error) {
	qb := psql.Select("id").
		From("events").
		Where("school_period_id = ?", periodID).
		Where("status = ?", event.StatusApproved).
		OrderBy("id")
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	rows, err := getExec(repo.exec, exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying approved events")
	}
	defer func() { _ = rows.Close() }()
	var ids []int
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning event id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (repo eventRepository) QueryApprovedEventsForBlock(ctx context.Context, blockID int, exec ...core.DBExecutor) ([]event.EventDetail, error) {
	qb := psql.Select("e.id").
		From("events e").
		Join("event_blocks eb ON eb.event_id = e.id").
		Where("eb.block_id = ?", blockID).
		Where("e.status = ?", event.StatusApproved).
		OrderBy("e.id")
	return repo.queryDetails(ctx, qb, exec)
}

func (repo eventRepository) QueryEvents(ctx context.Context, filter event.QueryFilter, exec ...core.DBExecutor) ([]event.EventDetail, error) {
	qb := psql.Select("e.id").
		From("events e").
		Join("event_names en ON en.id = e.event_name_id").
		Where("e.status <> ?", event.StatusDeleted).
		OrderBy("e.id DESC")
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		qb = qb.Where("(en.name ILIKE ? OR e.venue ILIKE ?)", like, like)
	}
	return repo.queryDetails(ctx, qb, exec)
}

func (repo eventRepository) queryDetails(ctx context.Context, idQuery sq.SelectBuilder, exec []core.DBExecutor) ([]event.EventDetail, error) {
	query, args, err := idQuery.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	rows, err := getExec(repo.exec, exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	defer func() { _ = rows.Close() }()
	var ids []int
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning event id")
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	details := make([]event.EventDetail, 0, len(ids))
	for _, id := range ids {
		detail, err := repo.GetEventDetail(ctx, id, exec...)
		if err != nil {
			return nil, err
		}
		details = append(details, detail)
	}
	return details, nil
}

func (repo eventRepository) GetEventDetail(ctx context.Context, id int, exec ...core.DBExecutor) (event.EventDetail, error) {
	var heads []eventHeadRow
	qb := psql.Select(
		"e.id",
		"en.name",
		"e.venue",
		"e.description",
		"e.status",
		"ca.first_name || ' ' || ca.last_name AS created_by_name",
		"aa.first_name || ' ' || aa.last_name AS approved_by_name",
	).
		From("events e").
		Join("event_names en ON en.id = e.event_name_id").
		Join("admins ca ON ca.id_number = e.created_by").
		LeftJoin("admins aa ON aa.id_number = e.approved_by").
		Where("e.id = ?", id)
	if err := selectAll(ctx, getExec(repo.exec, exec), &heads, qb); err != nil {
		return event.EventDetail{}, errors.Wrap(err, "getting event detail")
	}
	if len(heads) == 0 {
		return event.EventDetail{}, event.ErrNotFound
	}
	head := heads[0]

	dates, err := repo.GetEventDates(ctx, id, exec...)
	if err != nil {
		return event.EventDetail{}, err
	}

	var blockRows []eventBlockRow
	bq := psql.Select("b.id", "b.name").
		From("event_blocks eb").
		Join("blocks b ON b.id = eb.block_id").
		Where("eb.event_id = ?", id).
		OrderBy("b.id")
	if err = selectAll(ctx, getExec(repo.exec, exec), &blockRows, bq); err != nil {
		return event.EventDetail{}, errors.Wrap(err, "querying event blocks")
	}

	detail := event.EventDetail{
		ID:             head.ID,
		Name:           head.Name,
		Venue:          head.Venue,
		Description:    head.Description,
		Status:         head.Status,
		Dates:          make([]string, 0, len(dates)),
		BlockIDs:       make([]int, 0, len(blockRows)),
		BlockNames:     make([]string, 0, len(blockRows)),
		CreatedByName:  head.CreatedByName,
		ApprovedByName: head.ApprovedByName.String,
	}
	for _, d := range dates {
		detail.Dates = append(detail.Dates, d.Date.Format(event.DateLayout))
	}
	// the slot schedule is a template shared by every date
	if len(dates) > 0 {
		detail.AmIn = dates[0].AmIn
		detail.AmOut = dates[0].AmOut
		detail.PmIn = dates[0].PmIn
		detail.PmOut = dates[0].PmOut
		detail.Duration = dates[0].Duration
	}
	for _, b := range blockRows {
		detail.BlockIDs = append(detail.BlockIDs, b.ID)
		detail.BlockNames = append(detail.BlockNames, b.Name)
	}
	return detail, nil
}

func splitAgg(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return []string{}
	}
	return strings.Split(s.String, ",")
}

func nullableStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
