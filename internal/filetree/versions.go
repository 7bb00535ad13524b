package filetree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/storage-gateway/internal/repository"
)

// CreateVersion добавляет версию файла с номером max+1.
// Файл, заблокированный не actor, — ErrCheckedOut.
func (t *Tree) CreateVersion(ctx context.Context, file *model.FileNode, in model.VersionInput, actor string) (*model.FileVersion, error) {
	if file.IsFolder() {
		return nil, fmt.Errorf("%w: версия папки", ErrInvalidOperation)
	}

	var created *model.FileVersion
	err := t.tx.RunInTx(ctx, func(ctx context.Context) error {
		// Строка узла сериализует конкурентные версии одного файла
		if err := t.nodes.Lock(ctx, file.ID); err != nil {
			return notFound(err, file.ID)
		}
		current, err := t.nodes.Get(ctx, file.ID)
		if err != nil {
			return notFound(err, file.ID)
		}
		if current.CheckedOutByOther(actor) {
			return fmt.Errorf("%w: %s", ErrCheckedOut, current.Name)
		}

		next := 1
		latest, err := t.versions.Latest(ctx, file.ID)
		switch {
		case err == nil:
			next = latest.Identifier + 1
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		v := &model.FileVersion{
			FileID:      file.ID,
			Identifier:  next,
			Size:        in.Size,
			ContentType: in.ContentType,
			CreatedAt:   t.now(),
			ModifiedAt:  in.ModifiedAt,
			Checksums:   copyMap(in.Checksums),
			Location:    copyMap(in.Location),
		}
		if actor != "" {
			v.CreatorID = &actor
		}
		if err := t.versions.Create(ctx, v); err != nil {
			return err
		}

		if current.Origin == model.OriginResolved {
			current.Origin = model.OriginCreated
			if err := t.nodes.Update(ctx, current); err != nil {
				return err
			}
		}
		created = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.logger.Debug("Версия создана",
		slog.String("file_id", file.ID),
		slog.Int("identifier", created.Identifier),
	)
	return created, nil
}

// UpdateVersionMetadata уточняет описательные поля версии: тип
// содержимого, время изменения и отсутствующие контрольные суммы.
// Размер, номер и уже записанные суммы не меняются.
func (t *Tree) UpdateVersionMetadata(ctx context.Context, v *model.FileVersion, patch model.VersionPatch) (*model.FileVersion, error) {
	updated := v.Clone()
	if patch.ContentType != "" {
		updated.ContentType = patch.ContentType
	}
	if patch.ModifiedAt != nil {
		ts := *patch.ModifiedAt
		updated.ModifiedAt = &ts
	}
	for k, sum := range patch.Checksums {
		if updated.Checksums == nil {
			updated.Checksums = map[string]string{}
		}
		if _, exists := updated.Checksums[k]; !exists {
			updated.Checksums[k] = sum
		}
	}

	if err := t.versions.UpdateMetadata(ctx, updated); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrVersionNotFound, v.Identifier)
		}
		return nil, err
	}
	return updated, nil
}

// ResolveVersion возвращает версию по номеру (с 1); пустой номер —
// последняя версия.
func (t *Tree) ResolveVersion(ctx context.Context, file *model.FileNode, identifier string) (*model.FileVersion, error) {
	if identifier == "" {
		v, err := t.versions.Latest(ctx, file.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: у файла нет версий", ErrVersionNotFound)
		}
		return v, err
	}

	n, ok := parseIdentifier(identifier)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrVersionNotFound, identifier)
	}
	v, err := t.versions.Get(ctx, file.ID, n)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrVersionNotFound, n)
	}
	return v, err
}

// IsDuplicate сообщает, что входящие метаданные описывают то же
// содержимое, что и версия v (совпадает расположение или sha256).
func IsDuplicate(v *model.FileVersion, in model.VersionInput) bool {
	if v == nil {
		return false
	}
	if obj, ok := in.Location["object"]; ok && obj != "" && v.Location["object"] == obj {
		return true
	}
	sum, ok := in.Checksums["sha256"]
	return ok && sum != "" && v.Checksums["sha256"] == sum && v.Size == in.Size
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
