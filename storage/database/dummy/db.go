// Package dummydb provides in-memory repositories for tests and local runs
// without a postgres instance.
package dummydb

import (
	"context"
	"database/sql"
	"sync"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/admin"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/event"
	"github.com/trezcool/mahudhurio/core/period"
	"github.com/trezcool/mahudhurio/core/school"
	"github.com/trezcool/mahudhurio/core/student"
)

type (
	eventBlock struct {
		ID      int
		EventID int
		BlockID int
	}

	DB struct {
		mu sync.RWMutex

		periods     map[int]*period.SchoolPeriod
		departments map[int]*school.Department
		courses     map[int]*school.Course
		yearLevels  map[int]*school.YearLevel
		blocks      map[int]*school.Block
		students    map[string]*student.Student
		admins      map[string]*admin.Admin
		eventNames  map[int]*event.EventName
		events      map[int]*event.Event
		eventDates  map[int]*event.EventDate
		eventBlocks map[int]*eventBlock
		attendance  map[int]*attendance.Attendance

		seq int

		// fault injection for transaction tests
		FailCreateEventDates  error
		FailCreateEventBlocks error
		FailCreatePeriod      error
	}

	snapshot struct {
		periods     map[int]*period.SchoolPeriod
		departments map[int]*school.Department
		courses     map[int]*school.Course
		yearLevels  map[int]*school.YearLevel
		blocks      map[int]*school.Block
		students    map[string]*student.Student
		admins      map[string]*admin.Admin
		eventNames  map[int]*event.EventName
		events      map[int]*event.Event
		eventDates  map[int]*event.EventDate
		eventBlocks map[int]*eventBlock
		attendance  map[int]*attendance.Attendance
		seq         int
	}
)

var _ core.DB = (*DB)(nil) // interface compliance check

func Open() (*DB, error) {
	return &DB{
		periods:     make(map[int]*period.SchoolPeriod),
		departments: make(map[int]*school.Department),
		courses:     make(map[int]*school.Course),
		yearLevels:  make(map[int]*school.YearLevel),
		blocks:      make(map[int]*school.Block),
		students:    make(map[string]*student.Student),
		admins:      make(map[string]*admin.Admin),
		eventNames:  make(map[int]*event.EventName),
		events:      make(map[int]*event.Event),
		eventDates:  make(map[int]*event.EventDate),
		eventBlocks: make(map[int]*eventBlock),
		attendance:  make(map[int]*attendance.Attendance),
	}, nil
}

// nextID must be called with the write lock held.
func (db *DB) nextID() int {
	db.seq++
	return db.seq
}

// DBExecutor stubs; repositories reach into the maps directly.
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) { return nil, nil }
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) { return nil, nil }
func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row { return nil }
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

// BeginTx snapshots the whole store; Rollback restores it, Commit drops the
// snapshot. Transactions are serialized by the store lock in each repo call,
// not by the Tx itself.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.DBTransactor, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return &Tx{DB: db, snap: db.snapshot()}, nil
}

type Tx struct {
	*DB
	snap *snapshot
	done bool
}

func (tx *Tx) Commit() error {
	if tx.done {
		return sql.ErrTxDone
	}
	tx.done = true
	tx.snap = nil
	return nil
}

func (tx *Tx) Rollback() error {
	if tx.done || tx.snap == nil {
		return sql.ErrTxDone
	}
	tx.DB.mu.Lock()
	defer tx.DB.mu.Unlock()
	tx.DB.restore(tx.snap)
	tx.done = true
	tx.snap = nil
	return nil
}

func (db *DB) snapshot() *snapshot {
	return &snapshot{
		periods:     copyIntMap(db.periods),
		departments: copyIntMap(db.departments),
		courses:     copyIntMap(db.courses),
		yearLevels:  copyIntMap(db.yearLevels),
		blocks:      copyIntMap(db.blocks),
		students:    copyStrMap(db.students),
		admins:      copyStrMap(db.admins),
		eventNames:  copyIntMap(db.eventNames),
		events:      copyIntMap(db.events),
		eventDates:  copyIntMap(db.eventDates),
		eventBlocks: copyIntMap(db.eventBlocks),
		attendance:  copyIntMap(db.attendance),
		seq:         db.seq,
	}
}

func (db *DB) restore(snap *snapshot) {
	db.periods = snap.periods
	db.departments = snap.departments
	db.courses = snap.courses
	db.yearLevels = snap.yearLevels
	db.blocks = snap.blocks
	db.students = snap.students
	db.admins = snap.admins
	db.eventNames = snap.eventNames
	db.events = snap.events
	db.eventDates = snap.eventDates
	db.eventBlocks = snap.eventBlocks
	db.attendance = snap.attendance
	db.seq = snap.seq
}

func copyIntMap[V any](src map[int]*V) map[int]*V {
	dst := make(map[int]*V, len(src))
	for k, v := range src {
		cp := *v
		dst[k] = &cp
	}
	return dst
}

func copyStrMap[V any](src map[string]*V) map[string]*V {
	dst := make(map[string]*V, len(src))
	for k, v := range src {
		cp := *v
		dst[k] = &cp
	}
	return dst
}
