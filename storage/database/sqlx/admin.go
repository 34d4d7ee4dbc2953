package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/admin"
)

type adminRow struct {
	IDNumber  string `db:"id_number"`
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
	Email     string `db:"email"`
	RoleID    int    `db:"role_id"`
}

type adminRepository struct {
	exec core.DBExecutor
}

var _ admin.Repository = (*adminRepository)(nil) // interface compliance check

func NewAdminRepository(exec core.DBExecutor) *adminRepository {
	return &adminRepository{exec: exec}
}

func (repo adminRepository) GetAdmin(ctx context.Context, idNumber string, exec ...core.DBExecutor) (admin.Admin, error) {
	var rows []adminRow
	qb := psql.Select("id_number", "first_name", "last_name", "email", "role_id").
		From("admins").
		Where("id_number = ?", idNumber)
	if err := selectAll(ctx, getExec(repo.exec, exec), &rows, qb); err != nil {
		return admin.Admin{}, errors.Wrap(err, "getting admin")
	}
	if len(rows) == 0 {
		return admin.Admin{}, admin.ErrNotFound
	}
	r := rows[0]
	return admin.Admin{
		IDNumber:  r.IDNumber,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		RoleID:    r.RoleID,
	}, nil
}
