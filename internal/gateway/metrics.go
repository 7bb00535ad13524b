package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики шлюза.
var (
	// credentialsIssuedTotal — выданные конверты учётных данных.
	credentialsIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sg_credentials_issued_total",
			Help: "Количество выданных конвертов учётных данных",
		},
		[]string{"provider", "action"},
	)

	// envelopeRejectionsTotal — отклонённые конверты (расшифровка, подпись, срок).
	envelopeRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sg_envelope_rejections_total",
			Help: "Количество отклонённых конвертов по операции шлюза",
		},
		[]string{"operation"},
	)
)
