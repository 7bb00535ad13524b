package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/storage-gateway/internal/action"
	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/storage-gateway/internal/events"
	"github.com/bigkaa/goartstore/storage-gateway/internal/filetree"
	"github.com/bigkaa/goartstore/storage-gateway/internal/provider"
)

// opResult — итог применения операции к дереву.
type opResult struct {
	params  map[string]any
	usage   map[string]model.UsageDelta
	cleanup []string
	path    string
	version int
}

func (r *opResult) addUsage(resourceID string, d model.UsageDelta) {
	if r.usage == nil {
		r.usage = map[string]model.UsageDelta{}
	}
	cur := r.usage[resourceID]
	cur.Bytes += d.Bytes
	cur.Versions += d.Versions
	cur.Logs += d.Logs
	r.usage[resourceID] = cur
}

// RecordOperation проверяет подписанный отчёт исполнительного слоя и
// в одной транзакции применяет операцию к дереву файлов, добавляет
// запись журнала и обновляет счётчики использования.
// Скачивания подтверждаются без записи. Повторная доставка того же
// отчёта запишется повторно.
func (g *Gateway) RecordOperation(ctx context.Context, resourceID, signed string) error {
	claims, err := g.deps.Codec.Verify(signed)
	if err != nil {
		envelopeRejectionsTotal.WithLabelValues("record_operation").Inc()
		return err
	}

	var p operationPayload
	if err := decodeClaims(claims, &p); err != nil {
		return err
	}
	if err := validateOperation(&p); err != nil {
		return err
	}
	if action.IsDownload(p.Action) {
		return nil
	}

	res, err := g.resource(ctx, resourceID)
	if err != nil {
		return err
	}

	if len(p.Errors) > 0 {
		g.logger.Info("Исполнительный слой сообщил об ошибке операции",
			slog.String("resource_id", res.ID),
			slog.String("action", p.Action),
			slog.Int("errors", len(p.Errors)),
		)
		g.deps.Bus.PublishAsync(ctx, events.Event{
			Kind:       events.KindOperationFailed,
			ResourceID: res.ID,
			ActorID:    p.Auth.ID,
			Action:     p.Action,
			Errors:     p.Errors,
		})
		return nil
	}

	logAct, ok := action.Classify(p.Action, p.Source.location(res.ID), p.Destination.location(res.ID))
	if !ok {
		return nil
	}

	var result opResult
	err = g.deps.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := g.apply(ctx, res, &p, &result); err != nil {
			return err
		}

		entry := &model.AuditLogEntry{
			ID:         uuid.NewString(),
			ResourceID: res.ID,
			Action:     string(logAct),
			Params:     result.params,
			CreatedAt:  g.now(),
		}
		if p.Auth.ID != "" {
			actor := p.Auth.ID
			entry.ActorID = &actor
		}
		if err := g.deps.Audit.Append(ctx, entry); err != nil {
			return err
		}

		result.addUsage(res.ID, model.UsageDelta{Logs: 1})
		// Фиксированный порядок блокировок строк счётчиков
		for _, id := range slices.Sorted(maps.Keys(result.usage)) {
			if delta := result.usage[id]; !delta.IsZero() {
				if err := g.deps.Usage.Apply(ctx, id, delta); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	g.deps.Bus.PublishAsync(ctx, events.Event{
		Kind:           events.KindOperationRecorded,
		ResourceID:     res.ID,
		ActorID:        p.Auth.ID,
		Action:         string(logAct),
		Provider:       p.providerName(),
		Path:           result.path,
		Version:        result.version,
		Notify:         p.Email,
		CleanupNodeIDs: result.cleanup,
	})
	g.logger.Debug("Операция записана",
		slog.String("resource_id", res.ID),
		slog.String("action", string(logAct)),
		slog.String("path", result.path),
	)
	return nil
}

// apply изменяет дерево файлов согласно операции.
func (g *Gateway) apply(ctx context.Context, res *model.Resource, p *operationPayload, r *opResult) error {
	switch p.Action {
	case action.OpCreate, action.OpUpdate:
		return g.applyWrite(ctx, res, p, r)
	case action.OpCreateFolder:
		return g.applyCreateFolder(ctx, res, p, r)
	case action.OpDelete:
		return g.applyDelete(ctx, res, p, r)
	case action.OpMove, action.OpCopy:
		return g.applyTransfer(ctx, res, p, r)
	}
	return fmt.Errorf("%w: %s", action.ErrUnknownAction, p.Action)
}

func (g *Gateway) applyWrite(ctx context.Context, res *model.Resource, p *operationPayload, r *opResult) error {
	m := p.Metadata
	r.path = m.path()
	r.params = endpointParams(m, res.ID)

	node, err := g.deps.Tree.Resolve(ctx, res.ID, m.Provider, r.path)
	if err != nil {
		return err
	}
	r.params["node_id"] = node.ID
	if m.Provider != provider.OSFStorageName || node.IsFolder() {
		return nil
	}

	in := m.versionInput()
	latest, err := g.deps.Tree.ResolveVersion(ctx, node, "")
	switch {
	case err == nil && filetree.IsDuplicate(latest, in):
		v, err := g.deps.Tree.UpdateVersionMetadata(ctx, latest, m.versionPatch())
		if err != nil {
			return err
		}
		r.version = v.Identifier
	case err == nil || errors.Is(err, filetree.ErrVersionNotFound):
		v, err := g.deps.Tree.CreateVersion(ctx, node, in, p.Auth.ID)
		if err != nil {
			return checkoutError(action.Upload, err)
		}
		r.version = v.Identifier
		r.addUsage(res.ID, model.UsageDelta{Bytes: v.Size, Versions: 1})
	default:
		return err
	}
	r.params["version"] = r.version
	return nil
}

func (g *Gateway) applyCreateFolder(ctx context.Context, res *model.Resource, p *operationPayload, r *opResult) error {
	m := p.Metadata
	r.path = m.path()
	r.params = endpointParams(m, res.ID)

	parent, err := g.deps.Tree.Resolve(ctx, res.ID, m.Provider, filetree.ParentPath(r.path))
	if err != nil {
		return err
	}
	folder, err := g.deps.Tree.CreateChild(ctx, parent, m.name(), model.KindFolder, p.Auth.ID)
	if err != nil {
		return err
	}
	r.params["node_id"] = folder.ID
	return nil
}

func (g *Gateway) applyDelete(ctx context.Context, res *model.Resource, p *operationPayload, r *opResult) error {
	m := p.Metadata
	r.path = m.path()
	r.params = endpointParams(m, res.ID)

	node, err := g.deps.Tree.Lookup(ctx, res.ID, m.Provider, r.path)
	if errors.Is(err, filetree.ErrNotFound) {
		// Узел не отслеживался: журналируем без изменения дерева
		return nil
	}
	if err != nil {
		return err
	}

	stats, err := g.deps.Tree.SubtreeStats(ctx, node)
	if err != nil {
		return err
	}
	if err := g.deps.Tree.Delete(ctx, node, p.Auth.ID); err != nil {
		return checkoutError(action.Delete, err)
	}
	r.params["node_id"] = node.ID
	r.addUsage(res.ID, model.UsageDelta{Bytes: -stats.Bytes, Versions: -stats.Versions})
	if node.ParentID != nil {
		r.cleanup = append(r.cleanup, *node.ParentID)
	}
	return nil
}

func (g *Gateway) applyTransfer(ctx context.Context, res *model.Resource, p *operationPayload, r *opResult) error {
	src, dst := p.Source, p.Destination
	srcRes, dstRes := src.resourceID(res.ID), dst.resourceID(res.ID)
	r.path = dst.path()
	r.params = map[string]any{
		"source":      endpointParams(src, srcRes),
		"destination": endpointParams(dst, dstRes),
	}

	// Обе стороны переноса должны быть живыми ресурсами
	for _, id := range []string{srcRes, dstRes} {
		if id == res.ID {
			continue
		}
		if _, err := g.resource(ctx, id); err != nil {
			return err
		}
	}

	node, err := g.deps.Tree.Resolve(ctx, srcRes, src.Provider, src.path())
	if err != nil {
		return err
	}
	parent, err := g.deps.Tree.Resolve(ctx, dstRes, dst.Provider, filetree.ParentPath(dst.path()))
	if err != nil {
		return err
	}
	stats, err := g.deps.Tree.SubtreeStats(ctx, node)
	if err != nil {
		return err
	}
	delta := model.UsageDelta{Bytes: stats.Bytes, Versions: stats.Versions}

	if p.Action == action.OpCopy {
		copied, err := g.deps.Tree.Copy(ctx, node, parent, dst.name(), p.Auth.ID)
		if err != nil {
			return checkoutError(action.Copy, err)
		}
		r.params["node_id"] = copied.ID
		r.addUsage(dstRes, delta)
		return nil
	}

	if node.IsRoot() {
		return fmt.Errorf("%w: перенос корня", filetree.ErrInvalidOperation)
	}
	oldParent := *node.ParentID
	moved, err := g.deps.Tree.Move(ctx, node, parent, dst.name(), p.Auth.ID)
	if err != nil {
		return checkoutError(action.Move, err)
	}
	r.params["node_id"] = moved.ID
	if srcRes != dstRes {
		r.addUsage(srcRes, model.UsageDelta{Bytes: -delta.Bytes, Versions: -delta.Versions})
		r.addUsage(dstRes, delta)
	}
	r.cleanup = append(r.cleanup, oldParent)
	return nil
}

// endpointParams — параметры записи журнала для узла.
func endpointParams(e *endpoint, resourceID string) map[string]any {
	return map[string]any{
		"nid":          resourceID,
		"provider":     e.Provider,
		"materialized": e.path(),
		"name":         e.name(),
		"kind":         string(e.kind()),
	}
}
