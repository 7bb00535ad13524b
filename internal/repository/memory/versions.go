package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/storage-gateway/internal/repository"
)

type versions struct{ s *Store }

func (r *versions) List(ctx context.Context, fileID string) ([]*model.FileVersion, error) {
	defer r.s.lock(ctx)()
	return lo.Map(r.s.state.versions[fileID], func(v *model.FileVersion, _ int) *model.FileVersion {
		return v.Clone()
	}), nil
}

func (r *versions) Get(ctx context.Context, fileID string, identifier int) (*model.FileVersion, error) {
	defer r.s.lock(ctx)()
	v, ok := lo.Find(r.s.state.versions[fileID], func(v *model.FileVersion) bool {
		return v.Identifier == identifier
	})
	if !ok {
		return nil, repository.ErrNotFound
	}
	return v.Clone(), nil
}

func (r *versions) Latest(ctx context.Context, fileID string) (*model.FileVersion, error) {
	defer r.s.lock(ctx)()
	list := r.s.state.versions[fileID]
	if len(list) == 0 {
		return nil, repository.ErrNotFound
	}
	return list[len(list)-1].Clone(), nil
}

func (r *versions) Create(ctx context.Context, v *model.FileVersion) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.state.nodes[v.FileID]; !ok {
		return fmt.Errorf("%w: файл %s", repository.ErrNotFound, v.FileID)
	}
	list := r.s.state.versions[v.FileID]
	if lo.ContainsBy(list, func(o *model.FileVersion) bool { return o.Identifier == v.Identifier }) {
		return fmt.Errorf("%w: версия %d файла %s", repository.ErrConflict, v.Identifier, v.FileID)
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	list = append(list, v.Clone())
	// Порядок по номеру версии
	for i := len(list) - 1; i > 0 && list[i].Identifier < list[i-1].Identifier; i-- {
		list[i], list[i-1] = list[i-1], list[i]
	}
	r.s.state.versions[v.FileID] = list
	return nil
}

func (r *versions) UpdateMetadata(ctx context.Context, v *model.FileVersion) error {
	defer r.s.lock(ctx)()
	_, idx, ok := lo.FindIndexOf(r.s.state.versions[v.FileID], func(o *model.FileVersion) bool {
		return o.Identifier == v.Identifier
	})
	if !ok {
		return repository.ErrNotFound
	}
	stored := r.s.state.versions[v.FileID][idx].Clone()
	stored.ContentType = v.ContentType
	stored.ModifiedAt = v.ModifiedAt
	stored.Checksums = lo.Assign(v.Checksums)
	r.s.state.versions[v.FileID][idx] = stored
	return nil
}
