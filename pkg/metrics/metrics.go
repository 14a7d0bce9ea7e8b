package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 中继指标管理器
type Metrics struct {
	// 连接指标
	connectionsActive prometheus.Gauge
	clientsRegistered prometheus.Gauge

	// 告警指标
	alertsCreated   *prometheus.CounterVec
	alertsCancelled prometheus.Counter
	alertsActive    prometheus.Gauge
	responsesTotal  *prometheus.CounterVec

	// 投递指标
	deliveriesTotal  *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec

	// 协议指标
	messagesTotal *prometheus.CounterVec
}

// NewMetrics registers the relay collectors on reg. A nil reg uses the
// default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		connectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Number of open transport connections",
		}),
		clientsRegistered: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_clients_registered",
			Help: "Number of identities currently present in the client registry",
		}),
		alertsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_alerts_created_total",
			Help: "Total number of alerts raised",
		}, []string{"emergency_type"}),
		alertsCancelled: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_alerts_cancelled_total",
			Help: "Total number of active alerts moved to cancelled",
		}),
		alertsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_alerts_active",
			Help: "Number of alerts currently active",
		}),
		responsesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_responses_total",
			Help: "Total number of responses recorded on alerts",
		}, []string{"response"}),
		deliveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Per-target delivery attempts by message type and result",
		}, []string{"type", "result"}),
		dispatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_dispatch_duration_seconds",
			Help:    "Duration of one fan-out batch",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"type"}),
		messagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Inbound protocol messages by action and decode outcome",
		}, []string{"action", "outcome"}),
	}
}

// Nil-receiver methods are no-ops so callers can run without metrics.

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connectionsActive.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connectionsActive.Dec()
	}
}

func (m *Metrics) SetClientsRegistered(n int) {
	if m != nil {
		m.clientsRegistered.Set(float64(n))
	}
}

func (m *Metrics) SetAlertsActive(n int) {
	if m != nil {
		m.alertsActive.Set(float64(n))
	}
}

func (m *Metrics) RecordAlertCreated(emergencyType string) {
	if m != nil {
		m.alertsCreated.WithLabelValues(emergencyType).Inc()
	}
}

func (m *Metrics) RecordAlertCancelled() {
	if m != nil {
		m.alertsCancelled.Inc()
	}
}

func (m *Metrics) RecordResponse(kind string) {
	if m != nil {
		m.responsesTotal.WithLabelValues(kind).Inc()
	}
}

// RecordDispatch 记录一次扇出的结果
func (m *Metrics) RecordDispatch(msgType string, succeeded, failed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(msgType, "ok").Add(float64(succeeded))
	m.deliveriesTotal.WithLabelValues(msgType, "failed").Add(float64(failed))
	m.dispatchDuration.WithLabelValues(msgType).Observe(duration.Seconds())
}

func (m *Metrics) RecordMessage(action, outcome string) {
	if m != nil {
		m.messagesTotal.WithLabelValues(action, outcome).Inc()
	}
}
