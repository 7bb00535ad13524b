package memory

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/storage-gateway/internal/repository"
)

type audit struct{ s *Store }

func (r *audit) Append(ctx context.Context, e *model.AuditLogEntry) error {
	defer r.s.lock(ctx)()
	c := *e
	c.Params = lo.Assign(e.Params)
	r.s.state.audit = append(r.s.state.audit, &c)
	return nil
}

func (r *audit) ListByResource(ctx context.Context, resourceID string, limit int) ([]*model.AuditLogEntry, error) {
	defer r.s.lock(ctx)()
	entries := lo.Filter(r.s.state.audit, func(e *model.AuditLogEntry, _ int) bool {
		return e.ResourceID == resourceID
	})
	entries = lo.Reverse(append([]*model.AuditLogEntry(nil), entries...))
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return lo.Map(entries, func(e *model.AuditLogEntry, _ int) *model.AuditLogEntry {
		c := *e
		return &c
	}), nil
}

type usage struct{ s *Store }

func (r *usage) Apply(ctx context.Context, resourceID string, delta model.UsageDelta) error {
	if delta.IsZero() {
		return nil
	}
	defer r.s.lock(ctx)()
	u, ok := r.s.state.usage[resourceID]
	if !ok {
		u = &model.ResourceUsage{ResourceID: resourceID}
		r.s.state.usage[resourceID] = u
	}
	u.BytesUsed = max(u.BytesUsed+delta.Bytes, 0)
	u.VersionCount = max(u.VersionCount+delta.Versions, 0)
	u.LogCount += delta.Logs
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *usage) Get(ctx context.Context, resourceID string) (*model.ResourceUsage, error) {
	defer r.s.lock(ctx)()
	u, ok := r.s.state.usage[resourceID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	return &c, nil
}
