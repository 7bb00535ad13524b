package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
)

// VersionRepository — версии файлов (только добавление и уточнение
// описательных полей).
type VersionRepository interface {
	// List возвращает версии файла по возрастанию номера.
	List(ctx context.Context, fileID string) ([]*model.FileVersion, error)
	// Get возвращает версию по номеру.
	Get(ctx context.Context, fileID string, identifier int) (*model.FileVersion, error)
	// Latest возвращает последнюю версию файла.
	Latest(ctx context.Context, fileID string) (*model.FileVersion, error)
	// Create вставляет версию. ErrConflict, если номер занят.
	Create(ctx context.Context, v *model.FileVersion) error
	// UpdateMetadata сохраняет content_type, modified_at и checksums.
	UpdateMetadata(ctx context.Context, v *model.FileVersion) error
}

const versionColumns = `file_id::text, identifier, size, content_type, created_at, modified_at,
	checksums, location, creator_id`

type versionRepo struct {
	db DBTX
}

// NewVersionRepository создаёт репозиторий версий.
func NewVersionRepository(db DBTX) VersionRepository {
	return &versionRepo{db: db}
}

func scanVersion(row pgx.Row) (*model.FileVersion, error) {
	v := &model.FileVersion{}
	err := row.Scan(
		&v.FileID, &v.Identifier, &v.Size, &v.ContentType, &v.CreatedAt, &v.ModifiedAt,
		&v.Checksums, &v.Location, &v.CreatorID,
	)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *versionRepo) List(ctx context.Context, fileID string) ([]*model.FileVersion, error) {
	rows, err := conn(ctx, r.db).Query(ctx,
		`SELECT `+versionColumns+` FROM file_versions WHERE file_id = $1 ORDER BY identifier`, fileID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения версий: %w", err)
	}
	defer rows.Close()

	var versions []*model.FileVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения версии: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (r *versionRepo) one(ctx context.Context, query string, args ...any) (*model.FileVersion, error) {
	v, err := scanVersion(conn(ctx, r.db).QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения версии: %w", err)
	}
	return v, nil
}

func (r *versionRepo) Get(ctx context.Context, fileID string, identifier int) (*model.FileVersion, error) {
	return r.one(ctx,
		`SELECT `+versionColumns+` FROM file_versions WHERE file_id = $1 AND identifier = $2`,
		fileID, identifier)
}

func (r *versionRepo) Latest(ctx context.Context, fileID string) (*model.FileVersion, error) {
	return r.one(ctx,
		`SELECT `+versionColumns+` FROM file_versions WHERE file_id = $1 ORDER BY identifier DESC LIMIT 1`,
		fileID)
}

func (r *versionRepo) Create(ctx context.Context, v *model.FileVersion) error {
	query := `
		INSERT INTO file_versions (file_id, identifier, size, content_type, created_at,
			modified_at, checksums, location, creator_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := conn(ctx, r.db).Exec(ctx, query,
		v.FileID, v.Identifier, v.Size, v.ContentType, v.CreatedAt,
		v.ModifiedAt, jsonObject(v.Checksums), jsonObject(v.Location), v.CreatorID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: версия %d файла %s", ErrConflict, v.Identifier, v.FileID)
		}
		return fmt.Errorf("ошибка создания версии: %w", err)
	}
	return nil
}

func (r *versionRepo) UpdateMetadata(ctx context.Context, v *model.FileVersion) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE file_versions
		SET content_type = $3, modified_at = $4, checksums = $5
		WHERE file_id = $1 AND identifier = $2`,
		v.FileID, v.Identifier, v.ContentType, v.ModifiedAt, jsonObject(v.Checksums),
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления версии: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
