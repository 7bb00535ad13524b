package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
)

// NodeRepository — CRUD для таблицы file_nodes.
type NodeRepository interface {
	// Get возвращает узел по ID (включая надгробия).
	Get(ctx context.Context, id string) (*model.FileNode, error)
	// GetRoot возвращает корень дерева провайдера ресурса.
	GetRoot(ctx context.Context, resourceID, provider string) (*model.FileNode, error)
	// FindChild возвращает живого потомка с данным именем и типом.
	FindChild(ctx context.Context, parentID, name string, kind model.NodeKind) (*model.FileNode, error)
	// FindDeletedChild возвращает последнее надгробие с данным именем и типом.
	FindDeletedChild(ctx context.Context, parentID, name string, kind model.NodeKind) (*model.FileNode, error)
	// ListChildren возвращает потомков папки.
	ListChildren(ctx context.Context, parentID string, includeDeleted bool) ([]*model.FileNode, error)
	// CountChildren возвращает число потомков, включая надгробия.
	CountChildren(ctx context.Context, parentID string) (int, error)
	// Create вставляет узел. ErrConflict при нарушении уникальности.
	Create(ctx context.Context, n *model.FileNode) error
	// Update сохраняет изменяемые поля узла.
	Update(ctx context.Context, n *model.FileNode) error
	// Lock блокирует строку узла до конца транзакции.
	Lock(ctx context.Context, id string) error
	// HardDelete физически удаляет узел.
	HardDelete(ctx context.Context, id string) error
}

const nodeColumns = `id::text, resource_id, provider, kind, name, parent_id::text, origin,
	is_deleted, deleted_by, deleted_at, checkout_user_id, tags, created_at, updated_at`

type nodeRepo struct {
	db DBTX
}

// NewNodeRepository создаёт репозиторий узлов дерева.
func NewNodeRepository(db DBTX) NodeRepository {
	return &nodeRepo{db: db}
}

func scanNode(row pgx.Row) (*model.FileNode, error) {
	n := &model.FileNode{}
	var kind, origin string
	err := row.Scan(
		&n.ID, &n.ResourceID, &n.Provider, &kind, &n.Name, &n.ParentID, &origin,
		&n.IsDeleted, &n.DeletedBy, &n.DeletedAt, &n.CheckoutUserID, &n.Tags,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Kind = model.NodeKind(kind)
	n.Origin = model.NodeOrigin(origin)
	return n, nil
}

func (r *nodeRepo) queryOne(ctx context.Context, query string, args ...any) (*model.FileNode, error) {
	n, err := scanNode(conn(ctx, r.db).QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения узла: %w", err)
	}
	return n, nil
}

func (r *nodeRepo) Get(ctx context.Context, id string) (*model.FileNode, error) {
	return r.queryOne(ctx, `SELECT `+nodeColumns+` FROM file_nodes WHERE id = $1`, id)
}

func (r *nodeRepo) GetRoot(ctx context.Context, resourceID, provider string) (*model.FileNode, error) {
	return r.queryOne(ctx, `
		SELECT `+nodeColumns+`
		FROM file_nodes
		WHERE resource_id = $1 AND provider = $2 AND parent_id IS NULL`,
		resourceID, provider)
}

func (r *nodeRepo) FindChild(ctx context.Context, parentID, name string, kind model.NodeKind) (*model.FileNode, error) {
	return r.queryOne(ctx, `
		SELECT `+nodeColumns+`
		FROM file_nodes
		WHERE parent_id = $1 AND name = $2 AND kind = $3 AND NOT is_deleted`,
		parentID, name, string(kind))
}

func (r *nodeRepo) FindDeletedChild(ctx context.Context, parentID, name string, kind model.NodeKind) (*model.FileNode, error) {
	return r.queryOne(ctx, `
		SELECT `+nodeColumns+`
		FROM file_nodes
		WHERE parent_id = $1 AND name = $2 AND kind = $3 AND is_deleted
		ORDER BY deleted_at DESC NULLS LAST
		LIMIT 1`,
		parentID, name, string(kind))
}

func (r *nodeRepo) ListChildren(ctx context.Context, parentID string, includeDeleted bool) ([]*model.FileNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM file_nodes WHERE parent_id = $1`
	if !includeDeleted {
		query += ` AND NOT is_deleted`
	}
	query += ` ORDER BY kind DESC, name`

	rows, err := conn(ctx, r.db).Query(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения потомков: %w", err)
	}
	defer rows.Close()

	var nodes []*model.FileNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения узла: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (r *nodeRepo) CountChildren(ctx context.Context, parentID string) (int, error) {
	var count int
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT COUNT(*) FROM file_nodes WHERE parent_id = $1`, parentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта потомков: %w", err)
	}
	return count, nil
}

func (r *nodeRepo) Create(ctx context.Context, n *model.FileNode) error {
	query := `
		INSERT INTO file_nodes (id, resource_id, provider, kind, name, parent_id, origin,
			is_deleted, deleted_by, deleted_at, checkout_user_id, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`

	err := conn(ctx, r.db).QueryRow(ctx, query,
		n.ID, n.ResourceID, n.Provider, string(n.Kind), n.Name, n.ParentID, string(n.Origin),
		n.IsDeleted, n.DeletedBy, n.DeletedAt, n.CheckoutUserID, nonNilTags(n.Tags),
	).Scan(&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: узел %q уже существует", ErrConflict, n.Name)
		}
		if isForeignKeyViolation(err) {
			// Родитель удалён параллельной очисткой контейнеров
			return fmt.Errorf("%w: родитель узла %q", ErrNotFound, n.Name)
		}
		return fmt.Errorf("ошибка создания узла: %w", err)
	}
	return nil
}

func (r *nodeRepo) Update(ctx context.Context, n *model.FileNode) error {
	query := `
		UPDATE file_nodes
		SET resource_id = $2, provider = $3, name = $4, parent_id = $5, origin = $6,
			is_deleted = $7, deleted_by = $8, deleted_at = $9, checkout_user_id = $10,
			tags = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := conn(ctx, r.db).QueryRow(ctx, query,
		n.ID, n.ResourceID, n.Provider, n.Name, n.ParentID, string(n.Origin),
		n.IsDeleted, n.DeletedBy, n.DeletedAt, n.CheckoutUserID, nonNilTags(n.Tags),
	).Scan(&n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: узел %q уже существует", ErrConflict, n.Name)
		}
		return fmt.Errorf("ошибка обновления узла: %w", err)
	}
	return nil
}

func (r *nodeRepo) Lock(ctx context.Context, id string) error {
	var locked string
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT id::text FROM file_nodes WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка блокировки узла: %w", err)
	}
	return nil
}

func (r *nodeRepo) HardDelete(ctx context.Context, id string) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM file_nodes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления узла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
