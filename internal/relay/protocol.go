package relay

import (
	"encoding/json"
)

// 客户端 -> 服务端 action
const (
	ActionRegister       = "register"
	ActionSOS            = "sos"
	ActionRespond        = "respond"
	ActionCancel         = "cancel"
	ActionUpdateLocation = "update_location"
	ActionPing           = "ping"
)

// 服务端 -> 客户端 type
const (
	TypeRegistered       = "registered"
	TypeSOSAlert         = "sos_alert"
	TypeSOSSent          = "sos_sent"
	TypeResponseReceived = "response_received"
	TypeAlertCancelled   = "alert_cancelled"
	TypePong             = "pong"
	TypeError            = "error"
)

// Response kinds accepted on a respond action
const (
	ResponseComing = "coming"
	ResponseUnable = "unable"
)

// DefaultEmergencyType is used when an sos carries no emergencyType
const DefaultEmergencyType = "general"

// Location is an opaque client payload. Only the proximity code looks inside.
type Location = json.RawMessage

// Envelope is the flat server->client record
type Envelope struct {
	Type          string   `json:"type"`
	UserID        string   `json:"userId,omitempty"`
	AlertID       string   `json:"alertId,omitempty"`
	From          string   `json:"from,omitempty"`
	EmergencyType string   `json:"emergencyType,omitempty"`
	Location      Location `json:"location,omitempty"`
	Response      string   `json:"response,omitempty"`
	NearbyUsers   *int     `json:"nearbyUsers,omitempty"`
	Distance      string   `json:"distance,omitempty"`
	ETA           string   `json:"eta,omitempty"`
	Timestamp     string   `json:"timestamp,omitempty"`
	Message       string   `json:"message,omitempty"`
	Action        string   `json:"action,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// Request is one decoded client->server message
type Request struct {
	Action        string
	UserID        string
	AlertID       string
	EmergencyType string
	Location      Location
	Response      string
}

// Outcome names what the decoder made of a frame
type Outcome string

const (
	OutcomeAccepted      Outcome = "accepted"
	OutcomeUnknownAction Outcome = "unknown_action"
	OutcomeMissingFields Outcome = "missing_fields"
	// OutcomeUndecodable is the only fatal outcome: the frame is not a JSON object.
	OutcomeUndecodable Outcome = "undecodable"
)

// Discarded reports whether the frame was dropped without running any operation
func (o Outcome) Discarded() bool { return o != OutcomeAccepted }

// Decode parses one inbound frame and validates the fields its action needs.
// A field of the wrong JSON type counts as missing.
func Decode(frame []byte) (Request, Outcome) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(frame, &raw); err != nil || raw == nil {
		return Request{}, OutcomeUndecodable
	}

	req := Request{
		Action:        stringField(raw, "action"),
		UserID:        stringField(raw, "userId"),
		AlertID:       stringField(raw, "alertId"),
		EmergencyType: stringField(raw, "emergencyType"),
		Response:      stringField(raw, "response"),
		Location:      locationField(raw, "location"),
	}

	switch req.Action {
	case ActionRegister, ActionUpdateLocation:
		if req.UserID == "" || req.Location == nil {
			return req, OutcomeMissingFields
		}
	case ActionSOS:
		if req.UserID == "" || req.Location == nil {
			return req, OutcomeMissingFields
		}
		if req.EmergencyType == "" {
			req.EmergencyType = DefaultEmergencyType
		}
	case ActionRespond:
		if req.UserID == "" || req.AlertID == "" {
			return req, OutcomeMissingFields
		}
		if req.Response != ResponseComing && req.Response != ResponseUnable {
			return req, OutcomeMissingFields
		}
	case ActionCancel:
		if req.AlertID == "" {
			return req, OutcomeMissingFields
		}
	case ActionPing:
	default:
		return req, OutcomeUnknownAction
	}
	return req, OutcomeAccepted
}

func stringField(raw map[string]json.RawMessage, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

func locationField(raw map[string]json.RawMessage, key string) Location {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return nil
	}
	out := make(Location, len(v))
	copy(out, v)
	return out
}
