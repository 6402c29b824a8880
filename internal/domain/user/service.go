package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicore/api/internal/apperr"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns directory entries matching the optional search term.
func (s *Service) List(ctx context.Context, search string, limit, offset int) ([]Mini, int, error) {
	users, total, err := s.repo.List(ctx, search, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list users: %v", apperr.ErrTransient, err)
	}
	minis := make([]Mini, 0, len(users))
	for _, u := range users {
		minis = append(minis, u.Mini())
	}
	return minis, total, nil
}

// Get returns the full user record.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: get user: %v", apperr.ErrTransient, err)
	}
	return u, nil
}
