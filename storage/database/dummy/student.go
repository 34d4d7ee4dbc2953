package dummydb

import (
	"context"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) GetStudent(ctx context.Context, idNumber string, exec ...core.DBExecutor) (student.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if std, ok := repo.db.students[idNumber]; ok {
		return *std, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) GetActiveStudent(ctx context.Context, idNumber string, exec ...core.DBExecutor) (student.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if std, ok := repo.db.students[idNumber]; ok && std.Status == student.StatusActive {
		return *std, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) CreateStudent(ctx context.Context, std student.Student, exec ...core.DBExecutor) (student.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.students[std.IDNumber]; ok {
		return student.Student{}, core.NewConflictError("a student with this id number already exists")
	}
	repo.db.students[std.IDNumber] = &std
	return std, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, std student.Student, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.students[std.IDNumber]; !ok {
		return student.ErrNotFound
	}
	repo.db.students[std.IDNumber] = &std
	return nil
}

func (repo *studentRepository) DisableAbsentStudents(ctx context.Context, seen []string, exec ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	seenSet := make(map[string]struct{}, len(seen))
	for _, id := range seen {
		seenSet[id] = struct{}{}
	}
	n := 0
	for _, std := range repo.db.students {
		if std.Status != student.StatusActive {
			continue
		}
		if _, ok := seenSet[std.IDNumber]; !ok {
			std.Status = student.StatusDisabled
			n++
		}
	}
	return n, nil
}

func (repo *studentRepository) QueryActiveStudentsByPeriod(ctx context.Context, periodID int, exec ...core.DBExecutor) ([]student.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	students := make([]student.Student, 0)
	for _, std := range repo.db.students {
		if std.Status != student.StatusActive {
			continue
		}
		blk, ok := repo.db.blocks[std.BlockID]
		if !ok || blk.SchoolPeriodID != periodID {
			continue
		}
		students = append(students, *std)
	}
	return students, nil
}
