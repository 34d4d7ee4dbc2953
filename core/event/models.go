package event

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/trezcool/mahudhurio/core"
)

// Event statuses.
const (
	StatusPending  = "Pending"
	StatusApproved = "Approved"
	StatusArchived = "Archived"
	StatusDeleted  = "Deleted"
)

// DateLayout is the wire format for event dates.
const DateLayout = "2006-01-02"

const defaultScanPersonnel = "Year Level Representatives, Governor, or Year Level Advisers"

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("event not found")
	ErrEventNameNotFound = core.NewNotFoundError("event name not found")
	ErrDateNotFound      = core.NewNotFoundError("event date not found")
	ErrNoActivePeriod    = core.NewStateError("no active school period found")
	ErrDuplicateEvent    = core.NewConflictError("an event with the exact same details already exists")
	ErrInconsistentEvent = core.NewStateError("event has no dates or blocks")
)

type (
	// EventName is an entry of the reusable name catalog.
	EventName struct {
		ID     int    `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	}

	Event struct {
		ID             int    `json:"id"`
		EventNameID    int    `json:"event_name_id"`
		SchoolPeriodID int    `json:"school_period_id"`
		Venue          string `json:"venue"`
		Description    string `json:"description,omitempty"`
		ScanPersonnel  string `json:"scan_personnel,omitempty"`
		CreatedBy      string `json:"created_by"`
		ApprovedBy     string `json:"approved_by,omitempty"`
		Status         string `json:"status"`
	}

	// EventDate is one calendar occurrence of an event. A nil slot means the
	// slot is not scheduled on that date; the schedule is sparse per date.
	EventDate struct {
		ID       int       `json:"id"`
		EventID  int       `json:"event_id"`
		Date     time.Time `json:"event_date"`
		AmIn     *string   `json:"am_in,omitempty"`
		AmOut    *string   `json:"am_out,omitempty"`
		PmIn     *string   `json:"pm_in,omitempty"`
		PmOut    *string   `json:"pm_out,omitempty"`
		Duration *int      `json:"duration,omitempty"`
	}

	// EventInput is the shared shape of the create and edit operations: the
	// four slot times and the duration are a template applied uniformly to
	// every date in the list.
	EventInput struct {
		EventNameID int      `json:"event_name_id" validate:"required"`
		Venue       string   `json:"venue" validate:"required"`
		Description string   `json:"description"`
		Dates       []string `json:"dates" validate:"required,min=1,dive,datetime=2006-01-02"`
		BlockIDs    []int    `json:"block_ids" validate:"required,min=1"`
		AmIn        *string  `json:"am_in,omitempty"`
		AmOut       *string  `json:"am_out,omitempty"`
		PmIn        *string  `json:"pm_in,omitempty"`
		PmOut       *string  `json:"pm_out,omitempty"`
		Duration    *int     `json:"duration,omitempty"`
		ActorID     string   `json:"admin_id_number" validate:"required"`
	}

	// DuplicateCandidate is an existing non-deleted event compared against
	// new input during duplicate detection.
	DuplicateCandidate struct {
		EventID  int
		Dates    []string
		BlockIDs []string
	}

	// EventDetail is the flattened listing shape.
	EventDetail struct {
		ID             int      `json:"id"`
		Name           string   `json:"name"`
		Venue          string   `json:"venue"`
		Description    string   `json:"description,omitempty"`
		Status         string   `json:"status"`
		Dates          []string `json:"dates"`
		AmIn           *string  `json:"am_in,omitempty"`
		AmOut          *string  `json:"am_out,omitempty"`
		PmIn           *string  `json:"pm_in,omitempty"`
		PmOut          *string  `json:"pm_out,omitempty"`
		Duration       *int     `json:"duration,omitempty"`
		BlockIDs       []int    `json:"block_ids"`
		BlockNames     []string `json:"block_names,omitempty"`
		CreatedByName  string   `json:"created_by"`
		ApprovedByName string   `json:"approved_by,omitempty"`
	}

	QueryFilter struct {
		Search string `query:"search"`
	}

	// ApprovedEventNotice is the payload broadcast when a create lands
	// directly in Approved state.
	ApprovedEventNotice struct {
		EventID       int      `json:"event_id"`
		EventNameID   int      `json:"event_name_id"`
		Name          string   `json:"event_name"`
		Venue         string   `json:"venue"`
		Dates         []string `json:"event_dates"`
		BlockIDs      []int    `json:"block_ids"`
		CreatedByName string   `json:"created_by_name"`
	}

	Repository interface {
		GetEventName(ctx context.Context, id int, exec ...core.DBExecutor) (EventName, error)
		GetEvent(ctx context.Context, id int, exec ...core.DBExecutor) (Event, error)
		CreateEvent(ctx context.Context, ev Event, exec ...core.DBExecutor) (Event, error)
		UpdateEvent(ctx context.Context, ev Event, exec ...core.DBExecutor) error
		UpdateEventStatus(ctx context.Context, id int, status, approvedBy string, exec ...core.DBExecutor) error
		// QueryDuplicateCandidates returns non-deleted Pending/Approved
		// events sharing (eventNameID, venue), with date and block-id sets
		// rendered as strings; excludeID skips the event being edited.
		QueryDuplicateCandidates(ctx context.Context, eventNameID int, venue string, excludeID int, exec ...core.DBExecutor) ([]DuplicateCandidate, error)
		GetEventDates(ctx context.Context, eventID int, exec ...core.DBExecutor) ([]EventDate, error)
		GetEventDate(ctx context.Context, id int, exec ...core.DBExecutor) (EventDate, error)
		CreateEventDates(ctx context.Context, dates []EventDate, exec ...core.DBExecutor) error
		DeleteEventDates(ctx context.Context, eventID int, exec ...core.DBExecutor) (int, error)
		GetEventBlockIDs(ctx context.Context, eventID int, exec ...core.DBExecutor) ([]int, error)
		CreateEventBlocks(ctx context.Context, eventID int, blockIDs []int, exec ...core.DBExecutor) error
		DeleteEventBlocks(ctx context.Context, eventID int, exec ...core.DBExecutor) (int, error)
		// ArchivePastEvents flips Approved events whose latest date is
		// strictly before `before` to Archived.
		ArchivePastEvents(ctx context.Context, before time.Time, exec ...core.DBExecutor) (int, error)
		QueryApprovedEventIDs(ctx context.Context, periodID int, exec ...core.DBExecutor) ([]int, error)
		// QueryApprovedEventsForBlock lists Approved events whose audience
		// includes the given block.
		QueryApprovedEventsForBlock(ctx context.Context, blockID int, exec ...core.DBExecutor) ([]EventDetail, error)
		QueryEvents(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]EventDetail, error)
		GetEventDetail(ctx context.Context, id int, exec ...core.DBExecutor) (EventDetail, error)
	}
)

func (in *EventInput) Validate() error {
	in.Venue = core.CleanString(in.Venue)
	in.Description = core.CleanString(in.Description)
	in.ActorID = core.CleanString(in.ActorID)
	return core.Validate.Struct(in)
}

// normalizeDateSet deduplicates and sorts ISO dates; lexical order is
// chronological order for this layout.
func normalizeDateSet(dates []string) []string {
	seen := make(map[string]struct{}, len(dates))
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		d = core.CleanString(d)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// normalizeBlockSet deduplicates block ids, returning them in insertion
// order plus the lexically sorted string set used for duplicate comparison.
// Both sides of every duplicate check use the same string sort, so the
// "10" < "2" ordering quirk cannot produce a mismatch.
func normalizeBlockSet(blockIDs []int) ([]int, []string) {
	seen := make(map[int]struct{}, len(blockIDs))
	ids := make([]int, 0, len(blockIDs))
	keys := make([]string, 0, len(blockIDs))
	for _, id := range blockIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		keys = append(keys, strconv.Itoa(id))
	}
	sort.Strings(keys)
	return ids, keys
}

func setsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
