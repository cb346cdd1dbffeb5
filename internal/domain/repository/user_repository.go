package repository

import (
	"context"

	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
)

// UserRepository define el puerto de usuarios (solo lo que la frontera de
// auth necesita).
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByEmailAndInstitution(ctx context.Context, email, institutionID string) (*entity.User, error)
}
