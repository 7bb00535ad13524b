// Пакет events — шина побочных эффектов шлюза: аналитика, уведомления,
// очистка пустых контейнеров. Обработчики вызываются в заданном порядке,
// их ошибки журналируются и не влияют на основной запрос.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Kind — тип события.
type Kind string

const (
	// KindFileAccessed — выданы учётные данные на чтение содержимого.
	KindFileAccessed Kind = "file_accessed"
	// KindOperationRecorded — операция исполнительного слоя записана в журнал.
	KindOperationRecorded Kind = "operation_recorded"
	// KindOperationFailed — исполнительный слой сообщил об ошибке операции.
	KindOperationFailed Kind = "operation_failed"
)

// Event — событие шлюза.
type Event struct {
	Kind       Kind      `json:"kind"`
	ResourceID string    `json:"resource_id"`
	ActorID    string    `json:"actor_id,omitempty"`
	Action     string    `json:"action"`
	Provider   string    `json:"provider,omitempty"`
	Path       string    `json:"path,omitempty"`
	Version    int       `json:"version,omitempty"`
	Notify     bool      `json:"-"`
	Errors     []string  `json:"errors,omitempty"`
	At         time.Time `json:"at"`

	// CleanupNodeIDs — узлы, от которых после операции стоит удалить
	// пустые контейнеры (родители удалённых и перенесённых узлов).
	CleanupNodeIDs []string `json:"-"`
}

// Handler — обработчик событий.
type Handler interface {
	Name() string
	Handle(ctx context.Context, ev Event) error
}

// Bus — упорядоченный список обработчиков.
type Bus struct {
	handlers []Handler
	timeout  time.Duration
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewBus создаёт шину. timeout ограничивает асинхронную обработку события.
func NewBus(logger *slog.Logger, timeout time.Duration, handlers ...Handler) *Bus {
	return &Bus{
		handlers: handlers,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "events")),
	}
}

// Publish синхронно передаёт событие всем обработчикам по порядку.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	for _, h := range b.handlers {
		if err := b.handle(ctx, h, ev); err != nil {
			b.logger.Warn("Ошибка обработчика события",
				slog.String("handler", h.Name()),
				slog.String("kind", string(ev.Kind)),
				slog.String("resource_id", ev.ResourceID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// PublishAsync обрабатывает событие в отдельной горутине, не зависящей
// от отмены ctx запроса.
func (b *Bus) PublishAsync(ctx context.Context, ev Event) {
	detached := context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(detached, b.timeout)
		defer cancel()
		b.Publish(ctx, ev)
	}()
}

// Wait ожидает завершения асинхронных обработок или отмены ctx.
func (b *Bus) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ожидание обработчиков событий: %w", ctx.Err())
	}
}

func (b *Bus) handle(ctx context.Context, h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника в обработчике: %v", r)
		}
	}()
	return h.Handle(ctx, ev)
}
