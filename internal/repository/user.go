package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
)

// UserRepository — чтение учётных записей пользователей.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT id, fullname, username, is_active FROM users WHERE id = $1`

	u := &model.User{}
	err := conn(ctx, r.db).QueryRow(ctx, query, id).Scan(&u.ID, &u.Fullname, &u.Username, &u.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}
