package events

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/storage-gateway/internal/webhook"
)

// AnalyticsHandler считает обращения к файлам и операции в Prometheus
// и при наличии webhook пересылает событие во внешнюю аналитику.
type AnalyticsHandler struct {
	fileAccess *prometheus.CounterVec
	operations *prometheus.CounterVec
	hook       *webhook.Client
}

// NewAnalyticsHandler регистрирует счётчики в reg.
func NewAnalyticsHandler(reg prometheus.Registerer, hook *webhook.Client) *AnalyticsHandler {
	factory := promauto.With(reg)
	return &AnalyticsHandler{
		fileAccess: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sg_file_access_total",
				Help: "Количество выдач учётных данных на чтение файлов",
			},
			[]string{"provider", "action"},
		),
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sg_operations_total",
				Help: "Количество операций исполнительного слоя по результату",
			},
			[]string{"action", "result"},
		),
		hook: hook,
	}
}

// Name возвращает имя обработчика.
func (h *AnalyticsHandler) Name() string { return "analytics" }

// Handle учитывает событие.
func (h *AnalyticsHandler) Handle(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case KindFileAccessed:
		h.fileAccess.WithLabelValues(ev.Provider, ev.Action).Inc()
	case KindOperationRecorded:
		h.operations.WithLabelValues(ev.Action, "success").Inc()
	case KindOperationFailed:
		h.operations.WithLabelValues(ev.Action, "failure").Inc()
	}
	return h.hook.Post(ctx, ev)
}
