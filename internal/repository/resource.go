package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
)

// ResourceRepository — чтение ресурсов, прав участников и настроек
// провайдеров. Таблицы принадлежат внешней системе.
type ResourceRepository interface {
	// GetByID возвращает ресурс по идентификатору.
	GetByID(ctx context.Context, id string) (*model.Resource, error)
	// ContributorPermission возвращает уровень доступа участника.
	// found = false, если пользователь не участник.
	ContributorPermission(ctx context.Context, resourceID, userID string) (perm model.Permission, found bool, err error)
	// GetProviderSettings возвращает настройки провайдера ресурса.
	GetProviderSettings(ctx context.Context, resourceID, provider string) (*model.ProviderSettings, error)
}

type resourceRepo struct {
	db DBTX
}

// NewResourceRepository создаёт репозиторий ресурсов.
func NewResourceRepository(db DBTX) ResourceRepository {
	return &resourceRepo{db: db}
}

func (r *resourceRepo) GetByID(ctx context.Context, id string) (*model.Resource, error) {
	query := `
		SELECT id, parent_id, type, title, is_public, is_deleted, is_retracted,
			primary_file_id::text, created_at, updated_at
		FROM resources
		WHERE id = $1`

	res := &model.Resource{}
	var typ string
	err := conn(ctx, r.db).QueryRow(ctx, query, id).Scan(
		&res.ID, &res.ParentID, &typ, &res.Title, &res.IsPublic, &res.IsDeleted,
		&res.IsRetracted, &res.PrimaryFileID, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения ресурса: %w", err)
	}
	res.Type = model.ResourceType(typ)
	return res, nil
}

func (r *resourceRepo) ContributorPermission(ctx context.Context, resourceID, userID string) (model.Permission, bool, error) {
	query := `
		SELECT permission
		FROM resource_contributors
		WHERE resource_id = $1 AND user_id = $2`

	var perm string
	err := conn(ctx, r.db).QueryRow(ctx, query, resourceID, userID).Scan(&perm)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("ошибка получения прав участника: %w", err)
	}
	return model.Permission(perm), true, nil
}

func (r *resourceRepo) GetProviderSettings(ctx context.Context, resourceID, provider string) (*model.ProviderSettings, error) {
	query := `
		SELECT resource_id, provider, credentials, settings
		FROM provider_settings
		WHERE resource_id = $1 AND provider = $2`

	ps := &model.ProviderSettings{}
	err := conn(ctx, r.db).QueryRow(ctx, query, resourceID, provider).Scan(
		&ps.ResourceID, &ps.Provider, &ps.Credentials, &ps.Settings,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения настроек провайдера: %w", err)
	}
	return ps, nil
}
