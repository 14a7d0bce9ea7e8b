package relay

import (
	"sync"
	"time"

	"RubiSOS/pkg/errors"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// Response is one entry of an alert's append-only response log
type Response struct {
	Responder   string
	Kind        string
	RespondedAt time.Time
}

type Alert struct {
	ID            string
	Sender        string
	EmergencyType string
	Location      Location
	CreatedAt     time.Time
	Status        Status
	Responses     []Response
}

func (a *Alert) clone() Alert {
	out := *a
	out.Location = cloneLocation(a.Location)
	out.Responses = append([]Response(nil), a.Responses...)
	return out
}

// AlertStats 告警数量快照
type AlertStats struct {
	Active    int `json:"active"`
	Cancelled int `json:"cancelled"`
}

// AlertStore owns every alert raised during the process lifetime. With a
// positive retention the backing cache evicts alerts that old.
type AlertStore struct {
	// mu serializes read-modify-write sequences; the cache only locks single calls.
	mu    sync.Mutex
	items *gocache.Cache
	now   func() time.Time
	newID func() string
}

func NewAlertStore(retention time.Duration) *AlertStore {
	var items *gocache.Cache
	if retention > 0 {
		cleanup := retention / 2
		if cleanup < time.Second {
			cleanup = time.Second
		}
		items = gocache.New(retention, cleanup)
	} else {
		items = gocache.New(gocache.NoExpiration, 0)
	}

	return &AlertStore{
		items: items,
		now:   time.Now,
		newID: func() string { return "alert_" + uuid.NewString() },
	}
}

// Create records a new active alert. It cannot fail.
func (s *AlertStore) Create(sender, emergencyType string, location Location) Alert {
	a := &Alert{
		ID:            s.newID(),
		Sender:        sender,
		EmergencyType: emergencyType,
		Location:      cloneLocation(location),
		CreatedAt:     s.now(),
		Status:        StatusActive,
		Responses:     []Response{},
	}

	s.mu.Lock()
	s.items.SetDefault(a.ID, a)
	out := a.clone()
	s.mu.Unlock()
	return out
}

// AddResponse appends to the response log and returns the alert's sender.
// The alert status is not checked: responses after cancellation are kept.
func (s *AlertStore) AddResponse(alertID, responder, kind string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.lookup(alertID)
	if !ok {
		return "", errors.ErrAlertNotFound.WithContext("alert_id", alertID)
	}
	a.Responses = append(a.Responses, Response{
		Responder:   responder,
		Kind:        kind,
		RespondedAt: s.now(),
	})
	return a.Sender, nil
}

// Cancel moves an active alert to cancelled and returns the distinct
// responders recorded so far, in first-response order. Cancelling a
// cancelled alert returns the same set with changed == false.
func (s *AlertStore) Cancel(alertID string) (responders []string, changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.lookup(alertID)
	if !ok {
		return nil, false, errors.ErrAlertNotFound.WithContext("alert_id", alertID)
	}
	if a.Status == StatusActive {
		a.Status = StatusCancelled
		changed = true
	}

	seen := make(map[string]bool, len(a.Responses))
	for _, r := range a.Responses {
		if seen[r.Responder] {
			continue
		}
		seen[r.Responder] = true
		responders = append(responders, r.Responder)
	}
	return responders, changed, nil
}

func (s *AlertStore) Get(alertID string) (Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.lookup(alertID)
	if !ok {
		return Alert{}, false
	}
	return a.clone(), true
}

func (s *AlertStore) Stats() AlertStats {
	var st AlertStats
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items.Items() {
		a, ok := item.Object.(*Alert)
		if !ok {
			continue
		}
		if a.Status == StatusActive {
			st.Active++
		} else {
			st.Cancelled++
		}
	}
	return st
}

// Sweep drops expired alerts now instead of waiting for the janitor
func (s *AlertStore) Sweep() {
	s.items.DeleteExpired()
}

func (s *AlertStore) lookup(alertID string) (*Alert, bool) {
	v, ok := s.items.Get(alertID)
	if !ok {
		return nil, false
	}
	a, ok := v.(*Alert)
	return a, ok
}
