package events

import (
	"context"
	"log/slog"

	"github.com/bigkaa/goartstore/storage-gateway/internal/webhook"
)

// notification — тело уведомления для внешнего сервиса рассылки.
type notification struct {
	Template   string   `json:"template"`
	ResourceID string   `json:"resource_id"`
	UserID     string   `json:"user_id,omitempty"`
	Action     string   `json:"action"`
	Path       string   `json:"path,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

// Шаблоны уведомлений.
const (
	TemplateOperationSucceeded = "file_operation_success"
	TemplateOperationFailed    = "file_operation_failed"
)

// NotificationHandler уведомляет пользователя о результате операции:
// об успехе только по запросу исполнительного слоя (флаг email),
// об ошибке всегда.
type NotificationHandler struct {
	hook   *webhook.Client
	logger *slog.Logger
}

// NewNotificationHandler создаёт обработчик. Без webhook уведомления
// только журналируются.
func NewNotificationHandler(hook *webhook.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		hook:   hook,
		logger: logger.With(slog.String("component", "notifications")),
	}
}

// Name возвращает имя обработчика.
func (h *NotificationHandler) Name() string { return "notification" }

// Handle отправляет уведомление.
func (h *NotificationHandler) Handle(ctx context.Context, ev Event) error {
	var template string
	switch {
	case ev.Kind == KindOperationFailed:
		template = TemplateOperationFailed
	case ev.Kind == KindOperationRecorded && ev.Notify:
		template = TemplateOperationSucceeded
	default:
		return nil
	}
	if ev.ActorID == "" {
		return nil
	}

	if !h.hook.Enabled() {
		h.logger.Info("Уведомление пользователя",
			slog.String("template", template),
			slog.String("user_id", ev.ActorID),
			slog.String("resource_id", ev.ResourceID),
			slog.String("action", ev.Action),
		)
		return nil
	}
	return h.hook.Post(ctx, notification{
		Template:   template,
		ResourceID: ev.ResourceID,
		UserID:     ev.ActorID,
		Action:     ev.Action,
		Path:       ev.Path,
		Errors:     ev.Errors,
	})
}
