package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/storage-gateway/internal/repository"
)

type nodes struct{ s *Store }

func (r *nodes) Get(ctx context.Context, id string) (*model.FileNode, error) {
	defer r.s.lock(ctx)()
	n, ok := r.s.state.nodes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return n.Clone(), nil
}

func (r *nodes) GetRoot(ctx context.Context, resourceID, provider string) (*model.FileNode, error) {
	defer r.s.lock(ctx)()
	n, ok := lo.Find(lo.Values(r.s.state.nodes), func(n *model.FileNode) bool {
		return n.ParentID == nil && n.ResourceID == resourceID && n.Provider == provider
	})
	if !ok {
		return nil, repository.ErrNotFound
	}
	return n.Clone(), nil
}

func (r *nodes) FindChild(ctx context.Context, parentID, name string, kind model.NodeKind) (*model.FileNode, error) {
	defer r.s.lock(ctx)()
	n, ok := lo.Find(r.children(parentID), func(n *model.FileNode) bool {
		return !n.IsDeleted && n.Name == name && n.Kind == kind
	})
	if !ok {
		return nil, repository.ErrNotFound
	}
	return n.Clone(), nil
}

func (r *nodes) FindDeletedChild(ctx context.Context, parentID, name string, kind model.NodeKind) (*model.FileNode, error) {
	defer r.s.lock(ctx)()
	tombs := lo.Filter(r.children(parentID), func(n *model.FileNode, _ int) bool {
		return n.IsDeleted && n.Name == name && n.Kind == kind
	})
	if len(tombs) == 0 {
		return nil, repository.ErrNotFound
	}
	latest := lo.MaxBy(tombs, func(a, b *model.FileNode) bool {
		return deletedAt(a).After(deletedAt(b))
	})
	return latest.Clone(), nil
}

func (r *nodes) ListChildren(ctx context.Context, parentID string, includeDeleted bool) ([]*model.FileNode, error) {
	defer r.s.lock(ctx)()
	children := lo.Filter(r.children(parentID), func(n *model.FileNode, _ int) bool {
		return includeDeleted || !n.IsDeleted
	})
	sort.Slice(children, func(i, j int) bool {
		if children[i].Kind != children[j].Kind {
			return children[i].Kind > children[j].Kind
		}
		return children[i].Name < children[j].Name
	})
	return lo.Map(children, func(n *model.FileNode, _ int) *model.FileNode { return n.Clone() }), nil
}

func (r *nodes) CountChildren(ctx context.Context, parentID string) (int, error) {
	defer r.s.lock(ctx)()
	return len(r.children(parentID)), nil
}

func (r *nodes) Create(ctx context.Context, n *model.FileNode) error {
	defer r.s.lock(ctx)()
	if _, exists := r.s.state.nodes[n.ID]; exists {
		return fmt.Errorf("%w: узел %s", repository.ErrConflict, n.ID)
	}
	if err := r.checkUnique(n); err != nil {
		return err
	}
	now := time.Now().UTC()
	n.CreatedAt, n.UpdatedAt = now, now
	r.s.state.nodes[n.ID] = n.Clone()
	return nil
}

func (r *nodes) Update(ctx context.Context, n *model.FileNode) error {
	defer r.s.lock(ctx)()
	existing, ok := r.s.state.nodes[n.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if err := r.checkUnique(n); err != nil {
		return err
	}
	n.CreatedAt = existing.CreatedAt
	n.UpdatedAt = time.Now().UTC()
	r.s.state.nodes[n.ID] = n.Clone()
	return nil
}

func (r *nodes) Lock(ctx context.Context, id string) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.state.nodes[id]; !ok {
		return repository.ErrNotFound
	}
	return nil
}

func (r *nodes) HardDelete(ctx context.Context, id string) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.state.nodes[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.state.nodes, id)
	delete(r.s.state.versions, id)
	return nil
}

func (r *nodes) children(parentID string) []*model.FileNode {
	return lo.Filter(lo.Values(r.s.state.nodes), func(n *model.FileNode, _ int) bool {
		return n.ParentID != nil && *n.ParentID == parentID
	})
}

// checkUnique повторяет частичные уникальные индексы file_nodes.
func (r *nodes) checkUnique(n *model.FileNode) error {
	for _, other := range r.s.state.nodes {
		if other.ID == n.ID {
			continue
		}
		if n.ParentID == nil {
			if other.ParentID == nil && other.ResourceID == n.ResourceID && other.Provider == n.Provider {
				return fmt.Errorf("%w: корень %s/%s", repository.ErrConflict, n.ResourceID, n.Provider)
			}
			continue
		}
		if n.IsDeleted || other.IsDeleted || other.ParentID == nil {
			continue
		}
		if *other.ParentID == *n.ParentID && other.Name == n.Name && other.Kind == n.Kind {
			return fmt.Errorf("%w: узел %q уже существует", repository.ErrConflict, n.Name)
		}
	}
	return nil
}

func deletedAt(n *model.FileNode) time.Time {
	if n.DeletedAt == nil {
		return time.Time{}
	}
	return *n.DeletedAt
}
