package relay

import (
	"context"
	"sync"

	"RubiSOS/pkg/errors"
	"RubiSOS/pkg/logger"

	"go.uber.org/zap"
)

type SessionState int

const (
	StateUnregistered SessionState = iota
	StateRegistered
)

func (s SessionState) String() string {
	if s == StateRegistered {
		return "registered"
	}
	return "unregistered"
}

// Session drives the protocol for one connection. Frames must be handed to
// it one at a time in arrival order; the transport's read loop does that.
type Session struct {
	relay *Relay
	conn  Conn

	mu         sync.Mutex
	state      SessionState
	identities []string
	closed     bool
}

func NewSession(relay *Relay, conn Conn) *Session {
	return &Session{relay: relay, conn: conn}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identities lists what this connection registered, oldest first
func (s *Session) Identities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.identities...)
}

// HandleMessage processes one frame. A non-nil error means the frame was
// undecodable and the connection should be closed.
func (s *Session) HandleMessage(ctx context.Context, frame []byte) error {
	_, err := s.Handle(ctx, frame)
	return err
}

// Handle processes one frame and reports how it was decoded. Discarded
// frames produce no reply unless the relay runs with strict errors.
func (s *Session) Handle(ctx context.Context, frame []byte) (Outcome, error) {
	req, outcome := Decode(frame)
	s.relay.metrics.RecordMessage(actionLabel(req.Action, outcome), string(outcome))

	switch outcome {
	case OutcomeAccepted:
	case OutcomeUndecodable:
		logger.Debug("undecodable frame", zap.String("conn", s.conn.ID()), zap.Int("bytes", len(frame)))
		return outcome, errors.ErrMalformedMessage.WithContext("conn", s.conn.ID())
	default:
		logger.Debug("message discarded",
			zap.String("conn", s.conn.ID()),
			zap.String("action", req.Action),
			zap.String("outcome", string(outcome)))
		s.relay.replyError(s.conn, req.Action, req.AlertID, errors.ErrMalformedMessage)
		return outcome, nil
	}

	switch req.Action {
	case ActionRegister:
		_ = s.relay.Register(s.conn, req.UserID, req.Location)
		s.markRegistered(req.UserID)
	case ActionUpdateLocation:
		s.relay.UpdateLocation(s.conn, req.UserID, req.Location)
	case ActionSOS:
		s.relay.RaiseAlert(ctx, s.conn, req.UserID, req.EmergencyType, req.Location)
	case ActionRespond:
		_, _ = s.relay.Respond(ctx, s.conn, req.UserID, req.AlertID, req.Response)
	case ActionCancel:
		_, _ = s.relay.Cancel(ctx, s.conn, req.AlertID)
	case ActionPing:
		_ = s.relay.reply(s.conn, &Envelope{Type: TypePong})
	}
	return outcome, nil
}

// Close releases every identity this connection registered. Safe to call twice.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	identities := s.identities
	s.mu.Unlock()

	s.relay.Disconnect(s.conn, identities)
}

func (s *Session) markRegistered(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateRegistered
	for i, id := range s.identities {
		if id == identity {
			s.identities = append(s.identities[:i], s.identities[i+1:]...)
			break
		}
	}
	s.identities = append(s.identities, identity)
}

func actionLabel(action string, outcome Outcome) string {
	switch action {
	case ActionRegister, ActionSOS, ActionRespond, ActionCancel, ActionUpdateLocation, ActionPing:
		return action
	}
	if outcome == OutcomeUndecodable {
		return "none"
	}
	return "unknown"
}
