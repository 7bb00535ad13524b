package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
)

// AuditRepository — журнал действий ресурсов (только добавление).
type AuditRepository interface {
	// Append добавляет запись в журнал.
	Append(ctx context.Context, e *model.AuditLogEntry) error
	// ListByResource возвращает последние записи ресурса, новые первыми.
	ListByResource(ctx context.Context, resourceID string, limit int) ([]*model.AuditLogEntry, error)
}

type auditRepo struct {
	db DBTX
}

// NewAuditRepository создаёт репозиторий журнала.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Append(ctx context.Context, e *model.AuditLogEntry) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO audit_log (id, resource_id, actor_id, action, params, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.ResourceID, e.ActorID, e.Action, jsonObject(e.Params), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал: %w", err)
	}
	return nil
}

func (r *auditRepo) ListByResource(ctx context.Context, resourceID string, limit int) ([]*model.AuditLogEntry, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT id::text, resource_id, actor_id, action, params, created_at
		FROM audit_log
		WHERE resource_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала: %w", err)
	}
	defer rows.Close()

	var entries []*model.AuditLogEntry
	for rows.Next() {
		e := &model.AuditLogEntry{}
		if err := rows.Scan(&e.ID, &e.ResourceID, &e.ActorID, &e.Action, &e.Params, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка чтения записи журнала: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
