package relay

import (
	"context"
	"fmt"
	"time"

	"RubiSOS/pkg/errors"
	"RubiSOS/pkg/logger"
	"RubiSOS/pkg/metrics"

	"go.uber.org/zap"
)

// Failure records why one target did not get a message
type Failure struct {
	Identity string
	Err      error
}

// Report summarizes one fan-out batch
type Report struct {
	Type      string
	Succeeded int
	Failed    int
	Failures  []Failure
}

func (r Report) Total() int { return r.Succeeded + r.Failed }

// Dispatcher delivers messages to identities through the registry. A failed
// target is recorded and skipped; it never aborts the rest of the batch.
type Dispatcher struct {
	registry *Registry
	metrics  *metrics.Metrics
}

func NewDispatcher(registry *Registry, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{registry: registry, metrics: m}
}

// Deliver sends the same envelope to every identity, in order
func (d *Dispatcher) Deliver(ctx context.Context, identities []string, msg *Envelope) Report {
	return d.DeliverEach(ctx, msg.Type, identities, func(Entry) any { return msg })
}

// DeliverEach builds the message per target from its registry entry
func (d *Dispatcher) DeliverEach(ctx context.Context, msgType string, identities []string, build func(Entry) any) Report {
	start := time.Now()
	report := Report{Type: msgType}

	for _, identity := range identities {
		err := ctx.Err()
		if err == nil {
			err = d.deliverOne(identity, build)
		}
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, Failure{Identity: identity, Err: err})
			logger.Warn("delivery failed",
				zap.String("type", msgType),
				zap.String("identity", identity),
				zap.Error(err))
			continue
		}
		report.Succeeded++
	}

	d.metrics.RecordDispatch(msgType, report.Succeeded, report.Failed, time.Since(start))
	return report
}

func (d *Dispatcher) deliverOne(identity string, build func(Entry) any) (err error) {
	entry, ok := d.registry.Lookup(identity)
	if !ok || entry.Conn == nil {
		return errors.ErrDeliveryFailure.WithContext("identity", identity).WithContext("reason", "not registered")
	}

	defer func() {
		if p := recover(); p != nil {
			err = errors.Wrap(fmt.Errorf("panic: %v", p), "send").WithContext("identity", identity)
		}
	}()

	if err := entry.Conn.SendJSON(build(entry)); err != nil {
		return errors.Wrapf(err, "send to %s", identity)
	}
	return nil
}
