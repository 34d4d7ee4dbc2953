package dummydb

import (
	"context"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/period"
)

type periodRepository struct {
	db *DB
}

var _ period.Repository = (*periodRepository)(nil) // interface compliance check

func NewPeriodRepository(db *DB) *periodRepository {
	return &periodRepository{db: db}
}

func (repo *periodRepository) GetActivePeriod(ctx context.Context, exec ...core.DBExecutor) (period.SchoolPeriod, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, prd := range repo.db.periods {
		if prd.Status == period.StatusActive {
			return *prd, nil
		}
	}
	return period.SchoolPeriod{}, period.ErrNoActivePeriod
}

func (repo *periodRepository) GetPeriod(ctx context.Context, id int, exec ...core.DBExecutor) (period.SchoolPeriod, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if prd, ok := repo.db.periods[id]; ok {
		return *prd, nil
	}
	return period.SchoolPeriod{}, period.ErrNotFound
}

func (repo *periodRepository) CreatePeriod(ctx context.Context, prd period.SchoolPeriod, exec ...core.DBExecutor) (period.SchoolPeriod, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.db.FailCreatePeriod; err != nil {
		return period.SchoolPeriod{}, err
	}
	for _, existing := range repo.db.periods {
		if existing.SchoolYear == prd.SchoolYear && existing.Semester == prd.Semester {
			return period.SchoolPeriod{}, period.ErrPeriodExists
		}
		if prd.Status == period.StatusActive && existing.Status == period.StatusActive {
			return period.SchoolPeriod{}, period.ErrPeriodExists
		}
	}
	prd.ID = repo.db.nextID()
	repo.db.periods[prd.ID] = &prd
	return prd, nil
}

func (repo *periodRepository) ArchivePeriod(ctx context.Context, id int, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	prd, ok := repo.db.periods[id]
	if !ok {
		return period.ErrNotFound
	}
	prd.Status = period.StatusArchived
	return nil
}
