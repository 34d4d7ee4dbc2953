package admin

import (
	"context"

	"github.com/trezcool/mahudhurio/core"
)

// RoleSuperAdmin holders create events pre-approved.
const RoleSuperAdmin = 4

var ErrNotFound = core.NewNotFoundError("admin not found")

type (
	Admin struct {
		IDNumber  string `json:"id_number"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email,omitempty"`
		RoleID    int    `json:"role_id"`
	}

	Repository interface {
		GetAdmin(ctx context.Context, idNumber string, exec ...core.DBExecutor) (Admin, error)
	}
)

func (a Admin) DisplayName() string { return a.FirstName + " " + a.LastName }

func (a Admin) IsSuperAdmin() bool { return a.RoleID == RoleSuperAdmin }
