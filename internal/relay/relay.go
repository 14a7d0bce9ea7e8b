package relay

import (
	"context"
	"fmt"
	"time"

	"RubiSOS/pkg/errors"
	"RubiSOS/pkg/logger"
	"RubiSOS/pkg/metrics"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Options tunes a Relay
type Options struct {
	// StrictErrors replies {type:error} for unknown alerts and malformed
	// messages instead of dropping them silently.
	StrictErrors bool
	Metrics      *metrics.Metrics
}

// Relay runs the alert operations against the shared registry and store
type Relay struct {
	registry   *Registry
	alerts     *AlertStore
	resolver   Resolver
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	strict     bool
}

func New(registry *Registry, alerts *AlertStore, resolver Resolver, opts Options) *Relay {
	return &Relay{
		registry:   registry,
		alerts:     alerts,
		resolver:   resolver,
		dispatcher: NewDispatcher(registry, opts.Metrics),
		metrics:    opts.Metrics,
		strict:     opts.StrictErrors,
	}
}

func (r *Relay) Registry() *Registry     { return r.registry }
func (r *Relay) Alerts() *AlertStore     { return r.alerts }
func (r *Relay) Dispatcher() *Dispatcher { return r.dispatcher }

// Register binds identity to conn and confirms on conn
func (r *Relay) Register(conn Conn, identity string, location Location) error {
	r.registry.Register(identity, conn, location)
	r.metrics.SetClientsRegistered(r.registry.Len())
	logger.Info("client registered", zap.String("identity", identity), zap.String("conn", conn.ID()))

	return r.reply(conn, &Envelope{
		Type:    TypeRegistered,
		UserID:  identity,
		Message: "Connected to rubiSOS network",
	})
}

// UpdateLocation moves identity if it is registered on conn
func (r *Relay) UpdateLocation(conn Conn, identity string, location Location) bool {
	ok := r.registry.UpdateLocation(identity, conn, location)
	if ok {
		logger.Debug("location updated", zap.String("identity", identity))
	}
	return ok
}

// RaiseAlert creates an alert, fans sos_alert out to the resolved recipients
// and confirms to the sender on conn with the number actually reached.
func (r *Relay) RaiseAlert(ctx context.Context, conn Conn, sender, emergencyType string, location Location) (Alert, Report) {
	alert := r.alerts.Create(sender, emergencyType, location)
	r.metrics.RecordAlertCreated(emergencyType)
	r.refreshAlertGauge()

	recipients := withoutIdentity(r.resolver.Resolve(sender, location), sender)
	origin, haveOrigin := ParsePoint(location)
	timestamp := alert.CreatedAt.UTC().Format(time.RFC3339Nano)

	report := r.dispatcher.DeliverEach(ctx, TypeSOSAlert, recipients, func(e Entry) any {
		msg := &Envelope{
			Type:          TypeSOSAlert,
			AlertID:       alert.ID,
			From:          sender,
			EmergencyType: emergencyType,
			Location:      alert.Location,
			Timestamp:     timestamp,
		}
		if haveOrigin {
			if p, ok := ParsePoint(e.Location); ok {
				km := DistanceKm(origin, p)
				_, eta := EstimateETA(km)
				msg.Distance = FormatDistance(km)
				msg.ETA = eta
			}
		}
		return msg
	})

	logger.Info("sos raised",
		zap.String("alert_id", alert.ID),
		zap.String("sender", sender),
		zap.String("emergency_type", emergencyType),
		zap.Int("recipients", len(recipients)),
		zap.Int("delivered", report.Succeeded),
		zap.Int("failed", report.Failed))

	nearby := report.Succeeded
	_ = r.reply(conn, &Envelope{
		Type:        TypeSOSSent,
		AlertID:     alert.ID,
		NearbyUsers: &nearby,
		Message:     fmt.Sprintf("Alert broadcast to %d nearby helper(s)", nearby),
	})
	return alert, report
}

// Respond records a response and tells the alert's sender
func (r *Relay) Respond(ctx context.Context, conn Conn, responder, alertID, kind string) (Report, error) {
	sender, err := r.alerts.AddResponse(alertID, responder, kind)
	if err != nil {
		logger.Debug("respond to unknown alert", zap.String("alert_id", alertID), zap.String("responder", responder))
		r.replyError(conn, ActionRespond, alertID, err)
		return Report{Type: TypeResponseReceived}, err
	}
	r.metrics.RecordResponse(kind)

	report := r.dispatcher.Deliver(ctx, []string{sender}, &Envelope{
		Type:     TypeResponseReceived,
		AlertID:  alertID,
		From:     responder,
		Response: kind,
		Message:  fmt.Sprintf("%s is %s!", cases.Title(language.Und).String(responder), kind),
	})
	logger.Info("alert response",
		zap.String("alert_id", alertID),
		zap.String("responder", responder),
		zap.String("response", kind),
		zap.Bool("sender_notified", report.Succeeded == 1))
	return report, nil
}

// Cancel marks the alert cancelled and notifies everyone who responded.
// Repeating it re-sends alert_cancelled to the same responders.
func (r *Relay) Cancel(ctx context.Context, conn Conn, alertID string) (Report, error) {
	responders, changed, err := r.alerts.Cancel(alertID)
	if err != nil {
		logger.Debug("cancel of unknown alert", zap.String("alert_id", alertID))
		r.replyError(conn, ActionCancel, alertID, err)
		return Report{Type: TypeAlertCancelled}, err
	}
	if changed {
		r.metrics.RecordAlertCancelled()
		r.refreshAlertGauge()
	}

	report := r.dispatcher.Deliver(ctx, responders, &Envelope{
		Type:    TypeAlertCancelled,
		AlertID: alertID,
		Message: "Emergency has been cancelled",
	})
	logger.Info("alert cancelled",
		zap.String("alert_id", alertID),
		zap.Bool("first_cancel", changed),
		zap.Int("notified", report.Succeeded))
	return report, nil
}

// Disconnect releases the identities conn registered, skipping any that a
// newer connection has since taken over.
func (r *Relay) Disconnect(conn Conn, identities []string) {
	for _, identity := range identities {
		if r.registry.Release(identity, conn) {
			logger.Info("client disconnected", zap.String("identity", identity), zap.String("conn", conn.ID()))
		}
	}
	r.metrics.SetClientsRegistered(r.registry.Len())
}

// Stats is a point-in-time view of relay state
type Stats struct {
	RegisteredClients int        `json:"registered_clients"`
	Alerts            AlertStats `json:"alerts"`
}

func (r *Relay) Stats() Stats {
	return Stats{
		RegisteredClients: r.registry.Len(),
		Alerts:            r.alerts.Stats(),
	}
}

// RefreshGauges resyncs the registry and alert gauges
func (r *Relay) RefreshGauges() {
	r.metrics.SetClientsRegistered(r.registry.Len())
	r.refreshAlertGauge()
}

func (r *Relay) refreshAlertGauge() {
	if r.metrics != nil {
		r.metrics.SetAlertsActive(r.alerts.Stats().Active)
	}
}

func (r *Relay) reply(conn Conn, msg *Envelope) error {
	if err := conn.SendJSON(msg); err != nil {
		logger.Warn("reply failed", zap.String("type", msg.Type), zap.String("conn", conn.ID()), zap.Error(err))
		return errors.Wrapf(err, "reply %s", msg.Type)
	}
	return nil
}

func (r *Relay) replyError(conn Conn, action, alertID string, err error) {
	if !r.strict {
		return
	}
	_ = r.reply(conn, &Envelope{
		Type:    TypeError,
		Action:  action,
		AlertID: alertID,
		Error:   errors.GetMessage(err),
	})
}

func withoutIdentity(ids []string, identity string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id != identity {
			out = append(out, id)
		}
	}
	return out
}
