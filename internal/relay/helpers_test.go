package relay

import (
	"encoding/json"
	"sync"

	"RubiSOS/pkg/errors"
)

// fakeConn records every envelope sent to it
type fakeConn struct {
	id string

	mu     sync.Mutex
	sent   []Envelope
	closed bool
	panics bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) SendJSON(v any) error {
	if c.panics {
		panic("boom")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrTransportClosed
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeConn) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) messages() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Envelope(nil), c.sent...)
}

func (c *fakeConn) ofType(typ string) []Envelope {
	var out []Envelope
	for _, m := range c.messages() {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) last() Envelope {
	msgs := c.messages()
	if len(msgs) == 0 {
		return Envelope{}
	}
	return msgs[len(msgs)-1]
}

func loc(lat, lng float64) Location {
	data, _ := json.Marshal(map[string]float64{"lat": lat, "lng": lng})
	return data
}

func frame(fields map[string]any) []byte {
	data, _ := json.Marshal(fields)
	return data
}
