package filetree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/storage-gateway/internal/repository"
)

// Stats — объём живого поддерева.
type Stats struct {
	Bytes    int64
	Versions int64
}

// Move переносит узел в папку newParent под именем newName (пустое —
// прежнее имя). Существующий живой тёзка в назначении становится
// надгробием. Перенос в другой ресурс снимает блокировки поддерева.
func (t *Tree) Move(ctx context.Context, node, newParent *model.FileNode, newName, actor string) (*model.FileNode, error) {
	if newName == "" {
		newName = node.Name
	}
	if err := t.validateTransfer(node, newParent, newName); err != nil {
		return nil, err
	}

	var moved *model.FileNode
	err := t.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := t.nodes.Get(ctx, node.ID)
		if err != nil {
			return notFound(err, node.ID)
		}
		if err := t.checkSubtree(ctx, current, actor); err != nil {
			return err
		}
		if err := t.checkNotDescendant(ctx, current, newParent); err != nil {
			return err
		}

		if current.ParentID != nil && *current.ParentID == newParent.ID && current.Name == newName {
			moved = current
			return nil
		}

		if err := t.replaceDestination(ctx, newParent, newName, current.Kind, current.ID, actor); err != nil {
			return err
		}

		crossResource := current.ResourceID != newParent.ResourceID || current.Provider != newParent.Provider
		parentID := newParent.ID
		current.ParentID = &parentID
		current.Name = newName
		if crossResource {
			current.ResourceID = newParent.ResourceID
			current.Provider = newParent.Provider
			current.CheckoutUserID = nil
		}
		if err := t.nodes.Update(ctx, current); err != nil {
			return conflictAsName(err, newName)
		}

		if crossResource && current.IsFolder() {
			if err := t.reassignDescendants(ctx, current); err != nil {
				return err
			}
		}
		moved = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// Copy копирует узел (с поддеревом и строками версий) в папку newParent.
func (t *Tree) Copy(ctx context.Context, node, newParent *model.FileNode, newName, actor string) (*model.FileNode, error) {
	if newName == "" {
		newName = node.Name
	}
	if err := t.validateTransfer(node, newParent, newName); err != nil {
		return nil, err
	}

	var copied *model.FileNode
	err := t.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := t.nodes.Get(ctx, node.ID)
		if err != nil {
			return notFound(err, node.ID)
		}
		if err := t.checkSubtree(ctx, current, actor); err != nil {
			return err
		}
		if err := t.checkNotDescendant(ctx, current, newParent); err != nil {
			return err
		}
		if err := t.replaceDestination(ctx, newParent, newName, current.Kind, current.ID, actor); err != nil {
			return err
		}

		copied, err = t.copyRecursive(ctx, current, newParent, newName)
		return err
	})
	if err != nil {
		return nil, err
	}
	return copied, nil
}

// Delete мягко удаляет узел и его живое поддерево. Пустые контейнеры,
// созданные только для разрешения путей, удаляются физически.
func (t *Tree) Delete(ctx context.Context, node *model.FileNode, actor string) error {
	if node.IsRoot() {
		return fmt.Errorf("%w: удаление корня", ErrInvalidOperation)
	}

	return t.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := t.nodes.Get(ctx, node.ID)
		if err != nil {
			return notFound(err, node.ID)
		}
		if current.IsDeleted {
			return nil
		}
		if err := t.checkSubtree(ctx, current, actor); err != nil {
			return err
		}
		return t.deleteSubtree(ctx, current, actor, t.now())
	})
}

// PruneContainers поднимается от узла nodeID к корню и физически удаляет
// пустые контейнеры с OriginResolved. Каждый узел блокируется до проверки
// на пустоту. Возвращает число удалённых узлов.
func (t *Tree) PruneContainers(ctx context.Context, nodeID string) (int, error) {
	removed := 0
	err := t.tx.RunInTx(ctx, func(ctx context.Context) error {
		id := nodeID
		for {
			// Блокировка до подсчёта потомков: параллельная вставка
			// дочернего узла дождётся фиксации и не повиснет без родителя
			err := t.nodes.Lock(ctx, id)
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			n, err := t.nodes.Get(ctx, id)
			if err != nil {
				return notFound(err, id)
			}
			if n.IsRoot() {
				return nil
			}
			empty, err := t.isEmptyContainer(ctx, n)
			if err != nil || !empty {
				return err
			}
			if err := t.nodes.HardDelete(ctx, n.ID); err != nil {
				return err
			}
			removed++
			id = *n.ParentID
		}
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		t.logger.Debug("Удалены пустые контейнеры",
			slog.String("from_node_id", nodeID),
			slog.Int("count", removed),
		)
	}
	return removed, nil
}

// SubtreeStats суммирует размер и число версий живых файлов поддерева.
func (t *Tree) SubtreeStats(ctx context.Context, node *model.FileNode) (Stats, error) {
	var stats Stats
	nodes, err := t.subtree(ctx, node)
	if err != nil {
		return stats, err
	}
	for _, n := range nodes {
		if n.IsFolder() {
			continue
		}
		versions, err := t.versions.List(ctx, n.ID)
		if err != nil {
			return stats, err
		}
		for _, v := range versions {
			stats.Bytes += v.Size
			stats.Versions++
		}
	}
	return stats, nil
}

func (t *Tree) validateTransfer(node, newParent *model.FileNode, newName string) error {
	if node.IsRoot() {
		return fmt.Errorf("%w: перенос корня", ErrInvalidOperation)
	}
	if !newParent.IsFolder() || newParent.IsDeleted {
		return fmt.Errorf("%w: назначение %s не является живой папкой", ErrInvalidOperation, newParent.ID)
	}
	if !validName(newName) {
		return fmt.Errorf("%w: имя %q", ErrInvalidPath, newName)
	}
	return nil
}

// checkSubtree: ни один файл поддерева не заблокирован другим и не
// является основным файлом ресурса.
func (t *Tree) checkSubtree(ctx context.Context, node *model.FileNode, actor string) error {
	var primary string
	res, err := t.resources.GetByID(ctx, node.ResourceID)
	switch {
	case err == nil:
		if res.PrimaryFileID != nil {
			primary = *res.PrimaryFileID
		}
	case !errors.Is(err, repository.ErrNotFound):
		return err
	}

	nodes, err := t.subtree(ctx, node)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if n.IsFolder() {
			continue
		}
		if n.CheckedOutByOther(actor) {
			return fmt.Errorf("%w: %s", ErrCheckedOut, n.Name)
		}
		if primary != "" && n.ID == primary {
			return fmt.Errorf("%w: %s", ErrPrimaryFileProtected, n.Name)
		}
	}
	return nil
}

// checkNotDescendant запрещает перенос папки внутрь самой себя.
func (t *Tree) checkNotDescendant(ctx context.Context, node, newParent *model.FileNode) error {
	if !node.IsFolder() {
		return nil
	}
	for cur := newParent; ; {
		if cur.ID == node.ID {
			return fmt.Errorf("%w: перенос папки внутрь себя", ErrInvalidOperation)
		}
		if cur.IsRoot() {
			return nil
		}
		parent, err := t.nodes.Get(ctx, *cur.ParentID)
		if err != nil {
			return notFound(err, *cur.ParentID)
		}
		cur = parent
	}
}

// replaceDestination превращает живого тёзку в назначении в надгробие:
// исполнительный слой уже заменил его содержимое.
func (t *Tree) replaceDestination(ctx context.Context, parent *model.FileNode, name string, kind model.NodeKind, selfID, actor string) error {
	existing, err := t.nodes.FindChild(ctx, parent.ID, name, kind)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID == selfID {
		return nil
	}
	return t.deleteSubtree(ctx, existing, actor, t.now())
}

func (t *Tree) deleteSubtree(ctx context.Context, n *model.FileNode, actor string, now time.Time) error {
	if n.IsFolder() {
		children, err := t.nodes.ListChildren(ctx, n.ID, false)
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := t.deleteSubtree(ctx, c, actor, now); err != nil {
				return err
			}
		}
	}

	empty, err := t.isEmptyContainer(ctx, n)
	if err != nil {
		return err
	}
	if empty {
		return t.nodes.HardDelete(ctx, n.ID)
	}

	n.IsDeleted = true
	n.DeletedAt = &now
	n.DeletedBy = nil
	if actor != "" {
		deletedBy := actor
		n.DeletedBy = &deletedBy
	}
	n.CheckoutUserID = nil
	return t.nodes.Update(ctx, n)
}

// isEmptyContainer: узел появился только при разрешении пути и ничего
// не содержит (папка без потомков, файл без версий).
func (t *Tree) isEmptyContainer(ctx context.Context, n *model.FileNode) (bool, error) {
	if n.Origin != model.OriginResolved {
		return false, nil
	}
	if n.IsFolder() {
		count, err := t.nodes.CountChildren(ctx, n.ID)
		return count == 0, err
	}
	_, err := t.versions.Latest(ctx, n.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return true, nil
	}
	return false, err
}

// subtree возвращает узел и всех его живых потомков (обход в ширину).
func (t *Tree) subtree(ctx context.Context, node *model.FileNode) ([]*model.FileNode, error) {
	result := []*model.FileNode{node}
	for i := 0; i < len(result); i++ {
		if !result[i].IsFolder() {
			continue
		}
		children, err := t.nodes.ListChildren(ctx, result[i].ID, false)
		if err != nil {
			return nil, err
		}
		result = append(result, children...)
	}
	return result, nil
}

// reassignDescendants переносит всех потомков (включая надгробия)
// в ресурс и провайдер папки folder и снимает их блокировки.
func (t *Tree) reassignDescendants(ctx context.Context, folder *model.FileNode) error {
	children, err := t.nodes.ListChildren(ctx, folder.ID, true)
	if err != nil {
		return err
	}
	for _, c := range children {
		c.ResourceID = folder.ResourceID
		c.Provider = folder.Provider
		c.CheckoutUserID = nil
		if err := t.nodes.Update(ctx, c); err != nil {
			return err
		}
		if c.IsFolder() {
			if err := t.reassignDescendants(ctx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Tree) copyRecursive(ctx context.Context, src, parent *model.FileNode, name string) (*model.FileNode, error) {
	parentID := parent.ID
	dup := &model.FileNode{
		ID:         uuid.NewString(),
		ResourceID: parent.ResourceID,
		Provider:   parent.Provider,
		Kind:       src.Kind,
		Name:       name,
		ParentID:   &parentID,
		Origin:     model.OriginCreated,
	}
	if src.Tags != nil {
		dup.Tags = append([]string(nil), src.Tags...)
	}
	if err := t.nodes.Create(ctx, dup); err != nil {
		return nil, conflictAsName(err, name)
	}

	if !src.IsFolder() {
		versions, err := t.versions.List(ctx, src.ID)
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			c := v.Clone()
			c.FileID = dup.ID
			if err := t.versions.Create(ctx, c); err != nil {
				return nil, err
			}
		}
		return dup, nil
	}

	children, err := t.nodes.ListChildren(ctx, src.ID, false)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		if _, err := t.copyRecursive(ctx, c, dup, c.Name); err != nil {
			return nil, err
		}
	}
	return dup, nil
}
