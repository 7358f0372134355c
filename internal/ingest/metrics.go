package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: сколько событий дошло до журнала
	IngestedTotal prometheus.Counter

	// Errors: дропы по причинам (decode, duplicate)
	DroppedTotal *prometheus.CounterVec

	// Saturation: сообщения, оставленные в pending после исчерпания ретраев
	ParkedTotal prometheus.Counter

	// Повторные попытки append (транзиентные сбои БД)
	AppendRetries prometheus.Counter

	// Latency: полный цикл «хвост → digest → insert»
	AppendDuration prometheus.Histogram

	// Verify: вердикты проверки цепочки (valid / invalid)
	VerifyTotal *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern — без регистратора метрики живут в изолированном реестре
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		IngestedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "auditchain_ingested_total",
			Help: "Total number of events durably appended to the chain.",
		}),

		DroppedTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "auditchain_dropped_total",
			Help: "Total number of queue messages dropped, by reason.",
		}, []string{"reason"}), // reason: decode, duplicate

		ParkedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "auditchain_parked_total",
			Help: "Messages left pending after append retries were exhausted.",
		}),

		AppendRetries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "auditchain_append_retries_total",
			Help: "Retried append attempts due to transient storage errors.",
		}),

		AppendDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "auditchain_append_duration_seconds",
			Help:    "Histogram of tail-read + digest + insert latency.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),

		VerifyTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "auditchain_verify_total",
			Help: "Chain verification verdicts.",
		}, []string{"verdict"}), // verdict: valid, invalid
	}
}
