package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDispatch(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordDispatch("sos_alert", 3, 1, time.Millisecond)
	m.RecordDispatch("sos_alert", 1, 0, time.Millisecond)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.deliveriesTotal.WithLabelValues("sos_alert", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveriesTotal.WithLabelValues("sos_alert", "failed")))
}

func TestGaugesAndCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.SetClientsRegistered(5)
	m.RecordAlertCreated("fire")
	m.RecordMessage("sos", "accepted")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionsActive))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.clientsRegistered))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsCreated.WithLabelValues("fire")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesTotal.WithLabelValues("sos", "accepted")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ConnectionOpened()
		m.RecordDispatch("x", 1, 1, time.Second)
		m.RecordResponse("coming")
	})
}
