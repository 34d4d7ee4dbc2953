package dummydb

import (
	"context"
	"strings"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) GetDepartmentByCode(ctx context.Context, code string, exec ...core.DBExecutor) (school.Department, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, dep := range repo.db.departments {
		if strings.EqualFold(dep.Code, code) {
			return *dep, nil
		}
	}
	return school.Department{}, school.ErrDepartmentNotFound
}

func (repo *schoolRepository) GetCourseByCode(ctx context.Context, code string, exec ...core.DBExecutor) (school.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, crs := range repo.db.courses {
		if strings.EqualFold(crs.Code, code) {
			return *crs, nil
		}
	}
	return school.Course{}, school.ErrCourseNotFound
}

func (repo *schoolRepository) GetYearLevel(ctx context.Context, id int, exec ...core.DBExecutor) (school.YearLevel, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if yl, ok := repo.db.yearLevels[id]; ok {
		return *yl, nil
	}
	return school.YearLevel{}, school.ErrYearLevelNotFound
}

func (repo *schoolRepository) FindBlock(ctx context.Context, key school.BlockKey, periodID int, activeOnly bool, exec ...core.DBExecutor) (school.Block, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, blk := range repo.db.blocks {
		if blk.Name != key.Name || blk.SchoolPeriodID != periodID || blk.YearLevelID != key.YearLevelID {
			continue
		}
		if activeOnly && blk.Status != school.StatusActive {
			continue
		}
		dep, ok := repo.db.departments[blk.DepartmentID]
		if !ok || !strings.EqualFold(dep.Code, key.DepartmentCode) {
			continue
		}
		crs, ok := repo.db.courses[blk.CourseID]
		if !ok || !strings.EqualFold(crs.Code, key.CourseCode) {
			continue
		}
		return *blk, nil
	}
	return school.Block{}, school.ErrBlockNotFound
}

func (repo *schoolRepository) CreateBlock(ctx context.Context, blk school.Block, exec ...core.DBExecutor) (school.Block, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	blk.ID = repo.db.nextID()
	repo.db.blocks[blk.ID] = &blk
	return blk, nil
}

func (repo *schoolRepository) ArchiveBlocksByPeriod(ctx context.Context, periodID int, exec ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n := 0
	for _, blk := range repo.db.blocks {
		if blk.SchoolPeriodID == periodID && blk.Status == school.StatusActive {
			blk.Status = school.StatusArchived
			n++
		}
	}
	return n, nil
}
