package relay

import (
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"RubiSOS/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertStoreCreate(t *testing.T) {
	s := NewAlertStore(0)
	a := s.Create("alice", "fire", loc(1, 1))

	assert.NotEmpty(t, a.ID)
	assert.Contains(t, a.ID, "alert_")
	assert.Equal(t, StatusActive, a.Status)
	assert.Empty(t, a.Responses)
	assert.False(t, a.CreatedAt.IsZero())

	got, ok := s.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Sender)
	assert.Equal(t, "fire", got.EmergencyType)
}

func TestAlertStoreUniqueIDsUnderConcurrency(t *testing.T) {
	s := NewAlertStore(0)
	const n = 500

	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- s.Create("alice", "general", nil).ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, s.Stats().Active)
}

func TestAlertStoreAddResponse(t *testing.T) {
	s := NewAlertStore(0)
	a := s.Create("alice", "fire", nil)

	sender, err := s.AddResponse(a.ID, "bob", ResponseComing)
	require.NoError(t, err)
	assert.Equal(t, "alice", sender)

	_, err = s.AddResponse(a.ID, "bob", ResponseComing)
	require.NoError(t, err)

	got, _ := s.Get(a.ID)
	require.Len(t, got.Responses, 2)
	assert.Equal(t, "bob", got.Responses[0].Responder)
	assert.Equal(t, ResponseComing, got.Responses[0].Kind)
}

func TestAlertStoreUnknownAlert(t *testing.T) {
	s := NewAlertStore(0)

	_, err := s.AddResponse("missing", "bob", ResponseComing)
	assert.True(t, stderrors.Is(err, errors.ErrAlertNotFound))

	_, _, err = s.Cancel("missing")
	assert.True(t, stderrors.Is(err, errors.ErrAlertNotFound))
	assert.Equal(t, AlertStats{}, s.Stats())
}

func TestAlertStoreCancelOnce(t *testing.T) {
	s := NewAlertStore(0)
	a := s.Create("alice", "fire", nil)
	_, _ = s.AddResponse(a.ID, "bob", ResponseComing)
	_, _ = s.AddResponse(a.ID, "carol", ResponseUnable)
	_, _ = s.AddResponse(a.ID, "bob", ResponseUnable)

	responders, changed, err := s.Cancel(a.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"bob", "carol"}, responders)

	responders, changed, err = s.Cancel(a.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, []string{"bob", "carol"}, responders)

	got, _ := s.Get(a.ID)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, AlertStats{Cancelled: 1}, s.Stats())
}

func TestAlertStoreResponseAfterCancelIsKept(t *testing.T) {
	s := NewAlertStore(0)
	a := s.Create("alice", "fire", nil)
	_, _, _ = s.Cancel(a.ID)

	_, err := s.AddResponse(a.ID, "bob", ResponseComing)
	require.NoError(t, err)

	got, _ := s.Get(a.ID)
	assert.Len(t, got.Responses, 1)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestAlertStoreGetReturnsCopy(t *testing.T) {
	s := NewAlertStore(0)
	a := s.Create("alice", "fire", nil)
	_, _ = s.AddResponse(a.ID, "bob", ResponseComing)

	got, _ := s.Get(a.ID)
	got.Responses[0].Responder = "mallory"
	got.Status = StatusCancelled

	again, _ := s.Get(a.ID)
	assert.Equal(t, "bob", again.Responses[0].Responder)
	assert.Equal(t, StatusActive, again.Status)
}

func TestAlertStoreRetention(t *testing.T) {
	s := NewAlertStore(50 * time.Millisecond)
	a := s.Create("alice", "fire", nil)

	_, ok := s.Get(a.ID)
	require.True(t, ok)

	time.Sleep(120 * time.Millisecond)
	s.Sweep()

	_, ok = s.Get(a.ID)
	assert.False(t, ok)
	_, err := s.AddResponse(a.ID, "bob", ResponseComing)
	assert.True(t, stderrors.Is(err, errors.ErrAlertNotFound))
}
