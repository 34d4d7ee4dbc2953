package dummydb

import (
	"context"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/admin"
)

type adminRepository struct {
	db *DB
}

var _ admin.Repository = (*adminRepository)(nil) // interface compliance check

func NewAdminRepository(db *DB) *adminRepository {
	return &adminRepository{db: db}
}

func (repo *adminRepository) GetAdmin(ctx context.Context, idNumber string, exec ...core.DBExecutor) (admin.Admin, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if adm, ok := repo.db.admins[idNumber]; ok {
		return *adm, nil
	}
	return admin.Admin{}, admin.ErrNotFound
}
