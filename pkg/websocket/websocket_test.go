package websocket

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"RubiSOS/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoSession struct {
	conn   *Connection
	closed chan struct{}
	once   sync.Once
}

func (s *echoSession) HandleMessage(_ context.Context, frame []byte) error {
	if string(frame) == "bad" {
		return errors.ErrMalformedMessage
	}
	return s.conn.SendJSON(map[string]string{"echo": string(frame)})
}

func (s *echoSession) Close() {
	s.once.Do(func() { close(s.closed) })
}

type countingObserver struct {
	opened, closed int64
}

func (o *countingObserver) ConnectionOpened() { atomic.AddInt64(&o.opened, 1) }
func (o *countingObserver) ConnectionClosed() { atomic.AddInt64(&o.closed, 1) }

func newTestServer(t *testing.T, cfg *Config) (*Hub, string, chan *echoSession) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(cfg)
	sessions := make(chan *echoSession, 8)
	r := gin.New()
	RegisterRoutes(r, NewHandler(hub, func(c *Connection) SessionHandler {
		s := &echoSession{conn: c, closed: make(chan struct{})}
		sessions <- s
		return s
	}))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + RouteWebSocket, sessions
}

func waitClosed(t *testing.T, s *echoSession) {
	t.Helper()
	select {
	case <-s.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("session was not closed")
	}
}

func TestServeOneMessagePerFrame(t *testing.T) {
	_, url, _ := newTestServer(t, nil)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(s)))
	}

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range []string{"a", "b", "c"} {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		var got map[string]string
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, want, got["echo"])
	}
}

func TestServeClosesOnMalformedFrame(t *testing.T) {
	hub, url, sessions := newTestServer(t, nil)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	session := <-sessions

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("bad")))
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInvalidFramePayloadData), "got %v", err)

	waitClosed(t, session)
	assert.Eventually(t, func() bool { return hub.GetConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, session.conn.Closed())
}

func TestClientDisconnectClosesSession(t *testing.T) {
	hub, url, sessions := newTestServer(t, nil)
	obs := &countingObserver{}
	hub.SetObserver(obs)

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	session := <-sessions
	assert.Equal(t, int64(1), hub.GetConnectionCount())

	require.NoError(t, ws.Close())
	waitClosed(t, session)
	assert.Eventually(t, func() bool { return hub.GetConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&obs.opened))
	assert.Equal(t, int64(1), atomic.LoadInt64(&obs.closed))

	err = session.conn.SendJSON(map[string]string{"late": "true"})
	assert.True(t, stderrors.Is(err, errors.ErrTransportClosed))
}

func TestServeRejectsOverLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnections = 1
	hub, url, sessions := newTestServer(t, cfg)

	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer first.Close()
	<-sessions
	assert.True(t, hub.Full())

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHubRegisterLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnections = 1
	hub := NewHub(cfg)
	defer hub.Close()
	obs := &countingObserver{}
	hub.SetObserver(obs)

	a := newConnection(hub, nil, "a")
	b := newConnection(hub, nil, "b")
	require.NoError(t, hub.Register(a))
	err := hub.Register(b)
	assert.Equal(t, errors.CodeConnectionLimit, errors.GetCode(err))

	hub.Unregister(a)
	hub.Unregister(a)
	assert.Equal(t, int64(0), hub.GetConnectionCount())
	assert.Equal(t, int64(1), atomic.LoadInt64(&obs.closed))
	assert.NoError(t, hub.Register(b))
}

func TestSendJSONFailsFastWhenFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MessageBufferSize = 1
	cfg.DropOnFull = true
	hub := NewHub(cfg)
	defer hub.Close()

	conn := newConnection(hub, nil, "test")
	assert.True(t, strings.HasPrefix(conn.ID(), "conn_"))
	require.NoError(t, conn.SendJSON(map[string]int{"n": 1}))
	err := conn.SendJSON(map[string]int{"n": 2})
	assert.True(t, stderrors.Is(err, errors.ErrSendBufferFull))

	hub.Unregister(conn)
	err = conn.SendJSON(map[string]int{"n": 3})
	assert.True(t, stderrors.Is(err, errors.ErrTransportClosed))
}

func TestSendJSONWaitsUpToTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MessageBufferSize = 1
	cfg.DropOnFull = false
	cfg.SendTimeout = 20 * time.Millisecond
	hub := NewHub(cfg)
	defer hub.Close()

	conn := newConnection(hub, nil, "test")
	require.NoError(t, conn.SendJSON("first"))

	start := time.Now()
	err := conn.SendJSON("second")
	assert.True(t, stderrors.Is(err, errors.ErrSendBufferFull))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	<-conn.Send
	assert.NoError(t, conn.SendJSON("third"))
}

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil)
	handler := NewHandler(hub, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, RouteWebSocketHealth, nil)
	handler.HealthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])

	hub.Close()
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, RouteWebSocketHealth, nil)
	handler.HealthCheck(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestConfigValidation(t *testing.T) {
	assert.NoError(t, ValidateConfig(DefaultConfig()))
	assert.Error(t, ValidateConfig(nil))

	invalid := DefaultConfig()
	invalid.HeartbeatInterval = 2 * invalid.ConnectionTimeout
	assert.Error(t, ValidateConfig(invalid))

	invalid = DefaultConfig()
	invalid.DropOnFull = false
	invalid.SendTimeout = 0
	assert.Error(t, ValidateConfig(invalid))

	invalid = DefaultConfig()
	invalid.CompressionLevel = 12
	assert.Error(t, ValidateConfig(invalid))
}

func TestConfigCloneAndMerge(t *testing.T) {
	config := DefaultConfig()
	cloned := CloneConfig(config)
	cloned.MaxConnections = 5
	assert.Equal(t, int64(DefaultMaxConnections), config.MaxConnections)
	assert.Nil(t, CloneConfig(nil))

	merged := MergeConfig(&Config{MaxConnections: 1000}, &Config{HeartbeatInterval: 60 * time.Second})
	assert.Equal(t, int64(1000), merged.MaxConnections)
	assert.Equal(t, 60*time.Second, merged.HeartbeatInterval)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv(EnvWebSocketMaxConnections, "250")
	t.Setenv(EnvWebSocketHeartbeatInterval, "10")
	t.Setenv(EnvWebSocketConnectionTimeout, "25s")
	t.Setenv(EnvWebSocketDropOnFull, "true")
	t.Setenv(EnvWebSocketSendTimeoutMs, "75")

	cfg := LoadConfigFromEnv()
	assert.Equal(t, int64(250), cfg.MaxConnections)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 25*time.Second, cfg.ConnectionTimeout)
	assert.True(t, cfg.DropOnFull)
	assert.Equal(t, 75*time.Millisecond, cfg.SendTimeout)
	assert.NoError(t, ValidateConfig(cfg))
	assert.Equal(t, "10s", GetConfigSummary(cfg)["heartbeat_interval"])
}
