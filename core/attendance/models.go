package attendance

import (
	"context"
	"time"

	"github.com/trezcool/mahudhurio/core"
)

// Sync actions.
const (
	ActionInserted = "inserted"
	ActionUpdated  = "updated"
)

// Presence filters applied to block summaries after aggregation.
const (
	FilterAll     = "all"
	FilterPresent = "present"
	FilterAbsent  = "absent"
)

var (
	ErrNotFound      = core.NewNotFoundError("attendance record not found")
	ErrAlreadyExists = core.NewConflictError("attendance record already exists")
)

type (
	// Attendance is one student's scan record for one event date. BlockID is
	// denormalized from the student's current block at scan time so the
	// record survives later roster moves.
	Attendance struct {
		ID          int    `json:"id"`
		EventDateID int    `json:"event_date_id"`
		StudentID   string `json:"student_id_number"`
		BlockID     int    `json:"block_id"`
		AmIn        bool   `json:"am_in"`
		AmOut       bool   `json:"am_out"`
		PmIn        bool   `json:"pm_in"`
		PmOut       bool   `json:"pm_out"`
	}

	// SyncRecord is one scanned record uploaded by a kiosk. A nil slot means
	// the kiosk has nothing to say about that slot; on update only non-nil
	// slots are written.
	SyncRecord struct {
		EventDateID int    `json:"event_date_id"`
		StudentID   string `json:"student_id_number"`
		AmIn        *bool  `json:"am_in,omitempty"`
		AmOut       *bool  `json:"am_out,omitempty"`
		PmIn        *bool  `json:"pm_in,omitempty"`
		PmOut       *bool  `json:"pm_out,omitempty"`
	}

	SyncedRecord struct {
		ID          int    `json:"id"`
		EventDateID int    `json:"event_date_id"`
		StudentID   string `json:"student_id_number"`
		BlockID     int    `json:"block_id"`
		Action      string `json:"action"`
	}

	FailedRecord struct {
		Record SyncRecord `json:"record"`
		Error  string     `json:"error"`
	}

	SyncResult struct {
		Synced []SyncedRecord `json:"synced_records"`
		Failed []FailedRecord `json:"failed_records"`
	}

	// SlotMask marks which of the four day slots an event schedules at all,
	// over every date of the event.
	SlotMask struct {
		AmIn  bool `json:"has_am_in"`
		AmOut bool `json:"has_am_out"`
		PmIn  bool `json:"has_pm_in"`
		PmOut bool `json:"has_pm_out"`
	}

	// JoinedRow is one (student, event date) pair flattened with schedule
	// and scan data, the unit every summary aggregates over. Nil Att slots
	// mean no scan record exists for the pair.
	JoinedRow struct {
		StudentID      string
		FirstName      string
		MiddleName     string
		LastName       string
		Suffix         string
		BlockID        int
		BlockName      string
		CourseCode     string
		CourseName     string
		DepartmentID   int
		DepartmentCode string
		DepartmentName string
		YearLevelID    int
		YearLevelName  string
		EventDateID    int
		Date           time.Time
		SchedAmIn      *string
		SchedAmOut     *string
		SchedPmIn      *string
		SchedPmOut     *string
		AttAmIn        *bool
		AttAmOut       *bool
		AttPmIn        *bool
		AttPmOut       *bool
	}

	// DateDetail is one date line of a student's block summary. Slot
	// timestamps render as "<date>T<scheduled time>" when attended and are
	// omitted entirely for slots the event never schedules.
	DateDetail struct {
		DateID           int     `json:"date_id"`
		Date             string  `json:"event_date"`
		SessionsRequired int     `json:"sessions_required"`
		SessionsAttended int     `json:"sessions_attended"`
		AmIn             *string `json:"am_in,omitempty"`
		AmInAttended     *bool   `json:"am_in_attended,omitempty"`
		AmOut            *string `json:"am_out,omitempty"`
		AmOutAttended    *bool   `json:"am_out_attended,omitempty"`
		PmIn             *string `json:"pm_in,omitempty"`
		PmInAttended     *bool   `json:"pm_in_attended,omitempty"`
		PmOut            *string `json:"pm_out,omitempty"`
		PmOutAttended    *bool   `json:"pm_out_attended,omitempty"`
	}

	// StudentBlockSummary carries per-slot counters only for slots the
	// event schedules.
	StudentBlockSummary struct {
		StudentID     string       `json:"student_id"`
		StudentName   string       `json:"student_name"`
		PresentCount  int          `json:"present_count"`
		AbsentCount   int          `json:"absent_count"`
		TotalSessions int          `json:"total_sessions"`
		AmInAttended  *int         `json:"am_in_attended,omitempty"`
		AmInTotal     *int         `json:"am_in_total,omitempty"`
		AmOutAttended *int         `json:"am_out_attended,omitempty"`
		AmOutTotal    *int         `json:"am_out_total,omitempty"`
		PmInAttended  *int         `json:"pm_in_attended,omitempty"`
		PmInTotal     *int         `json:"pm_in_total,omitempty"`
		PmOutAttended *int         `json:"pm_out_attended,omitempty"`
		PmOutTotal    *int         `json:"pm_out_total,omitempty"`
		Details       []DateDetail `json:"attendance_details"`
	}

	BlockSummary struct {
		EventID        int                   `json:"event_id"`
		BlockID        int                   `json:"block_id"`
		FirstEventDate string                `json:"first_event_date,omitempty"`
		LastEventDate  string                `json:"last_event_date,omitempty"`
		Slots          SlotMask              `json:"available_time_periods"`
		Students       []StudentBlockSummary `json:"attendance_summary"`
	}

	// Facet is a filterable dimension value surfaced alongside an event
	// summary.
	Facet struct {
		ID   int    `json:"id"`
		Code string `json:"code,omitempty"`
		Name string `json:"name"`
	}

	StudentEventSummary struct {
		IDNumber       string `json:"id_number"`
		FullName       string `json:"full_name"`
		BlockID        int    `json:"block_id"`
		BlockName      string `json:"block_name"`
		CourseCode     string `json:"course_code"`
		CourseName     string `json:"course_name"`
		DepartmentID   int    `json:"department_id"`
		DepartmentCode string `json:"department_code"`
		DepartmentName string `json:"department_name"`
		YearLevelID    int    `json:"year_level_id"`
		YearLevelName  string `json:"year_level_name"`
		PresentCount   int    `json:"present_count"`
		AbsentCount    int    `json:"absent_count"`
		TotalSessions  int    `json:"total_sessions"`

		lastName  string
		firstName string
	}

	EventSummary struct {
		EventID     int                   `json:"event_id"`
		EventName   string                `json:"event_name"`
		EventStatus string                `json:"event_status"`
		Departments []Facet               `json:"departments"`
		YearLevels  []Facet               `json:"year_levels"`
		Blocks      []Facet               `json:"blocks"`
		Students    []StudentEventSummary `json:"students"`
	}

	// DaySummary tallies one date of a single student's record; slot pair
	// counters appear only for slots the event schedules.
	DaySummary struct {
		PresentCount  int  `json:"present_count"`
		AbsentCount   int  `json:"absent_count"`
		TotalCount    int  `json:"total_count"`
		AmInAttended  *int `json:"am_in_attended,omitempty"`
		AmInTotal     *int `json:"am_in_total,omitempty"`
		AmOutAttended *int `json:"am_out_attended,omitempty"`
		AmOutTotal    *int `json:"am_out_total,omitempty"`
		PmInAttended  *int `json:"pm_in_attended,omitempty"`
		PmInTotal     *int `json:"pm_in_total,omitempty"`
		PmOutAttended *int `json:"pm_out_attended,omitempty"`
		PmOutTotal    *int `json:"pm_out_total,omitempty"`
	}

	StudentSummary struct {
		EventName   string                 `json:"event_name"`
		StudentID   string                 `json:"student_id"`
		StudentName string                 `json:"student_name"`
		Slots       SlotMask               `json:"available_time_periods"`
		Days        map[string]*DaySummary `json:"attendance_summary"`
	}

	// SlotFlags is a student's scan state for one date of one event.
	SlotFlags struct {
		AmIn  bool `json:"am_in"`
		AmOut bool `json:"am_out"`
		PmIn  bool `json:"pm_in"`
		PmOut bool `json:"pm_out"`
	}

	// ScheduleEntry is one ongoing event on a student's personal schedule.
	ScheduleEntry struct {
		EventID    int                  `json:"event_id"`
		EventName  string               `json:"event_name"`
		EventDates []string             `json:"event_dates"`
		Attendance map[string]SlotFlags `json:"attendance"`
	}

	Repository interface {
		GetAttendance(ctx context.Context, eventDateID int, studentID string, exec ...core.DBExecutor) (Attendance, error)
		CreateAttendance(ctx context.Context, att Attendance, exec ...core.DBExecutor) (Attendance, error)
		// UpdateAttendanceSlots writes only rec's non-nil slots, plus the
		// denormalized block id.
		UpdateAttendanceSlots(ctx context.Context, rec SyncRecord, blockID int, exec ...core.DBExecutor) error
		DeleteAttendanceByEvent(ctx context.Context, eventID int, exec ...core.DBExecutor) (int, error)
		CountAttendanceByEvent(ctx context.Context, eventID int, exec ...core.DBExecutor) (int, error)
		// BackfillAbsences inserts an all-false record for every
		// (audience student, event date) pair still missing one.
		BackfillAbsences(ctx context.Context, eventIDs []int, exec ...core.DBExecutor) (int, error)
		// QueryBlockRows joins one block's active students with every date
		// of the event, ordered by student id then date.
		QueryBlockRows(ctx context.Context, eventID, blockID int, exec ...core.DBExecutor) ([]JoinedRow, error)
		// QueryEventRows joins the whole audience; zero departmentID or
		// yearLevelID means no filter on that dimension.
		QueryEventRows(ctx context.Context, eventID, departmentID, yearLevelID int, exec ...core.DBExecutor) ([]JoinedRow, error)
		QueryStudentAttendance(ctx context.Context, studentID string, eventDateIDs []int, exec ...core.DBExecutor) ([]Attendance, error)
	}
)

// Count reports how many slots the mask schedules.
func (m SlotMask) Count() int {
	n := 0
	for _, on := range []bool{m.AmIn, m.AmOut, m.PmIn, m.PmOut} {
		if on {
			n++
		}
	}
	return n
}

// tally returns the sessions one joined row requires and attends. A slot
// counts as required only when scheduled on that date.
func (r JoinedRow) tally() (required, attended int) {
	slots := []struct {
		sched *string
		att   *bool
	}{
		{r.SchedAmIn, r.AttAmIn},
		{r.SchedAmOut, r.AttAmOut},
		{r.SchedPmIn, r.AttPmIn},
		{r.SchedPmOut, r.AttPmOut},
	}
	for _, s := range slots {
		if s.sched == nil {
			continue
		}
		required++
		if s.att != nil && *s.att {
			attended++
		}
	}
	return required, attended
}

func attended(b *bool) bool { return b != nil && *b }
