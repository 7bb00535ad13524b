package events

import (
	"context"
	"errors"
	"log/slog"
)

// Pruner удаляет пустые контейнеры, созданные при разрешении путей.
type Pruner interface {
	PruneContainers(ctx context.Context, nodeID string) (int, error)
}

// TrashHandler после удалений и переносов убирает опустевшие
// контейнеры над затронутыми узлами.
type TrashHandler struct {
	pruner Pruner
	logger *slog.Logger
}

// NewTrashHandler создаёт обработчик.
func NewTrashHandler(pruner Pruner, logger *slog.Logger) *TrashHandler {
	return &TrashHandler{
		pruner: pruner,
		logger: logger.With(slog.String("component", "trash")),
	}
}

// Name возвращает имя обработчика.
func (h *TrashHandler) Name() string { return "trash" }

// Handle обрабатывает KindOperationRecorded с узлами для очистки.
func (h *TrashHandler) Handle(ctx context.Context, ev Event) error {
	if ev.Kind != KindOperationRecorded || len(ev.CleanupNodeIDs) == 0 {
		return nil
	}

	var errs []error
	total := 0
	for _, id := range ev.CleanupNodeIDs {
		n, err := h.pruner.PruneContainers(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += n
	}
	if total > 0 {
		h.logger.Debug("Очищены пустые контейнеры",
			slog.String("resource_id", ev.ResourceID),
			slog.Int("count", total),
		)
	}
	return errors.Join(errs...)
}
