package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeOutcomes(t *testing.T) {
	cases := []struct {
		name    string
		frame   string
		outcome Outcome
	}{
		{"register", `{"action":"register","userId":"alice","location":{"lat":1,"lng":1}}`, OutcomeAccepted},
		{"register without location", `{"action":"register","userId":"alice"}`, OutcomeMissingFields},
		{"register null location", `{"action":"register","userId":"alice","location":null}`, OutcomeMissingFields},
		{"numeric user id", `{"action":"register","userId":7,"location":{}}`, OutcomeMissingFields},
		{"sos", `{"action":"sos","userId":"alice","location":{"lat":1,"lng":1}}`, OutcomeAccepted},
		{"respond coming", `{"action":"respond","userId":"bob","alertId":"a1","response":"coming"}`, OutcomeAccepted},
		{"respond unable", `{"action":"respond","userId":"bob","alertId":"a1","response":"unable"}`, OutcomeAccepted},
		{"respond bad kind", `{"action":"respond","userId":"bob","alertId":"a1","response":"maybe"}`, OutcomeMissingFields},
		{"respond without alert", `{"action":"respond","userId":"bob","response":"coming"}`, OutcomeMissingFields},
		{"cancel", `{"action":"cancel","alertId":"a1"}`, OutcomeAccepted},
		{"cancel without alert", `{"action":"cancel"}`, OutcomeMissingFields},
		{"ping", `{"action":"ping"}`, OutcomeAccepted},
		{"unknown action", `{"action":"dance"}`, OutcomeUnknownAction},
		{"no action", `{"userId":"alice"}`, OutcomeUnknownAction},
		{"not json", `hello`, OutcomeUndecodable},
		{"json array", `[1,2]`, OutcomeUndecodable},
		{"json null", `null`, OutcomeUndecodable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, outcome := Decode([]byte(tc.frame))
			assert.Equal(t, tc.outcome, outcome)
		})
	}
}

func TestDecodeDefaultsEmergencyType(t *testing.T) {
	req, outcome := Decode([]byte(`{"action":"sos","userId":"alice","location":{"lat":1,"lng":1}}`))
	assert.Equal(t, OutcomeAccepted, outcome)
	assert.Equal(t, DefaultEmergencyType, req.EmergencyType)
	assert.JSONEq(t, `{"lat":1,"lng":1}`, string(req.Location))

	req, _ = Decode([]byte(`{"action":"sos","userId":"alice","emergencyType":"fire","location":{}}`))
	assert.Equal(t, "fire", req.EmergencyType)
}

func TestOutcomeDiscarded(t *testing.T) {
	assert.False(t, OutcomeAccepted.Discarded())
	assert.True(t, OutcomeUnknownAction.Discarded())
	assert.True(t, OutcomeMissingFields.Discarded())
	assert.True(t, OutcomeUndecodable.Discarded())
}
