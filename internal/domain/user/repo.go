package user

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines storage for the user directory.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	List(ctx context.Context, search string, limit, offset int) ([]*User, int, error)
}
