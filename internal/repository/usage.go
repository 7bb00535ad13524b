package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
)

// UsageRepository — счётчики использования хранилища ресурсами.
type UsageRepository interface {
	// Apply прибавляет delta к счётчикам ресурса (upsert).
	Apply(ctx context.Context, resourceID string, delta model.UsageDelta) error
	// Get возвращает счётчики ресурса.
	Get(ctx context.Context, resourceID string) (*model.ResourceUsage, error)
}

type usageRepo struct {
	db DBTX
}

// NewUsageRepository создаёт репозиторий счётчиков.
func NewUsageRepository(db DBTX) UsageRepository {
	return &usageRepo{db: db}
}

func (r *usageRepo) Apply(ctx context.Context, resourceID string, delta model.UsageDelta) error {
	if delta.IsZero() {
		return nil
	}
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO resource_usage (resource_id, bytes_used, version_count, log_count)
		VALUES ($1, GREATEST($2::bigint, 0), GREATEST($3::bigint, 0), GREATEST($4::bigint, 0))
		ON CONFLICT (resource_id) DO UPDATE SET
			bytes_used = GREATEST(resource_usage.bytes_used + $2, 0),
			version_count = GREATEST(resource_usage.version_count + $3, 0),
			log_count = resource_usage.log_count + $4,
			updated_at = NOW()`,
		resourceID, delta.Bytes, delta.Versions, delta.Logs,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления счётчиков: %w", err)
	}
	return nil
}

func (r *usageRepo) Get(ctx context.Context, resourceID string) (*model.ResourceUsage, error) {
	u := &model.ResourceUsage{}
	err := conn(ctx, r.db).QueryRow(ctx, `
		SELECT resource_id, bytes_used, version_count, log_count, updated_at
		FROM resource_usage WHERE resource_id = $1`, resourceID,
	).Scan(&u.ResourceID, &u.BytesUsed, &u.VersionCount, &u.LogCount, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения счётчиков: %w", err)
	}
	return u, nil
}
