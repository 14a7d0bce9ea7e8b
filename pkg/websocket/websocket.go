package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"RubiSOS/pkg/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Connection 表示一个WebSocket连接
type Connection struct {
	id          string
	Conn        *websocket.Conn
	Send        chan []byte
	Hub         *Hub
	RemoteAddr  string
	ConnectedAt time.Time

	mu       sync.RWMutex
	lastPing time.Time
	closed   bool
}

// ConnectionObserver 连接数变化回调，metrics 实现了它
type ConnectionObserver interface {
	ConnectionOpened()
	ConnectionClosed()
}

// Hub 管理所有WebSocket连接
type Hub struct {
	// 注册的连接
	connections map[string]*Connection
	// 连接计数
	connectionCount int64
	// 配置
	config *Config
	// 连接数回调
	observer ConnectionObserver
	// 互斥锁
	mu sync.RWMutex
	// 上下文
	ctx    context.Context
	cancel context.CancelFunc
}

// Config WebSocket配置
type Config struct {
	// 最大连接数
	MaxConnections int64
	// 心跳间隔
	HeartbeatInterval time.Duration
	// 连接超时时间，超过未收到 pong 即断开
	ConnectionTimeout time.Duration
	// 每个连接的发送缓冲区大小
	MessageBufferSize int
	// 读缓冲区大小
	ReadBufferSize int
	// 写缓冲区大小
	WriteBufferSize int
	// 最大消息大小
	MaxMessageSize int
	// 是否启用压缩
	EnableCompression bool
	// 压缩等级（-2..9）
	CompressionLevel int
	// 发送缓冲区满时立即失败
	DropOnFull bool
	// 慢消费者策略：背压触发时直接断开
	CloseOnBackpressure bool
	// 发送阻塞超时（用于非 DropOnFull 模式）
	SendTimeout time.Duration
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:      DefaultMaxConnections,
		HeartbeatInterval:   DefaultHeartbeatInterval * time.Second,
		ConnectionTimeout:   DefaultConnectionTimeout * time.Second,
		MessageBufferSize:   DefaultMessageBufferSize,
		ReadBufferSize:      DefaultReadBufferSize,
		WriteBufferSize:     DefaultWriteBufferSize,
		MaxMessageSize:      DefaultMaxMessageSize,
		EnableCompression:   false,
		CompressionLevel:    -2,
		DropOnFull:          false,
		CloseOnBackpressure: true,
		SendTimeout:         DefaultSendTimeoutMs * time.Millisecond,
	}
}

// NewHub 创建新的Hub实例
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		connections: make(map[string]*Connection),
		config:      config,
		ctx:         ctx,
		cancel:      cancel,
	}

	go hub.run()
	return hub
}

// SetObserver 设置连接数回调，需在接受连接之前调用
func (h *Hub) SetObserver(o ConnectionObserver) {
	h.mu.Lock()
	h.observer = o
	h.mu.Unlock()
}

// Config 返回Hub配置
func (h *Hub) Config() *Config {
	return h.config
}

// Context is cancelled when the hub closes; sessions use it for fan-out
func (h *Hub) Context() context.Context {
	return h.ctx
}

// run Hub主循环
func (h *Hub) run() {
	interval := h.config.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.checkHeartbeats()
		}
	}
}

// Register 注册连接，超过上限返回 ErrConnectionLimit
func (h *Hub) Register(conn *Connection) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ctx.Err() != nil {
		return errors.ErrTransportClosed.WithContext("conn", conn.id)
	}
	// 检查最大连接数
	if atomic.LoadInt64(&h.connectionCount) >= h.config.MaxConnections {
		logrus.Warnf("达到最大连接数限制: %d", h.config.MaxConnections)
		return errors.ErrConnectionLimit.WithContext("conn", conn.id)
	}

	h.connections[conn.id] = conn
	atomic.AddInt64(&h.connectionCount, 1)
	if h.observer != nil {
		h.observer.ConnectionOpened()
	}

	logrus.Infof("WebSocket连接已注册: %s, 来自: %s, 当前连接数: %d",
		conn.id, conn.RemoteAddr, atomic.LoadInt64(&h.connectionCount))
	return nil
}

// Unregister 注销连接并关闭其发送通道，重复调用无副作用
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	_, exists := h.connections[conn.id]
	if exists {
		delete(h.connections, conn.id)
		atomic.AddInt64(&h.connectionCount, -1)
	}
	observer := h.observer
	h.mu.Unlock()

	conn.markClosed()
	if !exists {
		return
	}
	if observer != nil {
		observer.ConnectionClosed()
	}
	logrus.Infof("WebSocket连接已注销: %s, 当前连接数: %d",
		conn.id, atomic.LoadInt64(&h.connectionCount))
}

// Full 是否已达到连接上限
func (h *Hub) Full() bool {
	return atomic.LoadInt64(&h.connectionCount) >= h.config.MaxConnections
}

// checkHeartbeats 检查心跳
func (h *Hub) checkHeartbeats() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := time.Now()
	for _, conn := range h.connections {
		if now.Sub(conn.LastPing()) > h.config.ConnectionTimeout {
			logrus.Warnf("连接 %s 心跳超时，准备关闭", conn.id)
			if conn.Conn != nil {
				_ = conn.Conn.Close()
			}
		}
	}
}

// GetConnectionCount 获取当前连接数
func (h *Hub) GetConnectionCount() int64 {
	return atomic.LoadInt64(&h.connectionCount)
}

// Close 关闭Hub
func (h *Hub) Close() {
	h.cancel()

	// 关闭所有连接，读协程退出后各自注销
	h.mu.RLock()
	for _, conn := range h.connections {
		conn.closeWith(websocket.CloseGoingAway, closeReasonShutdown)
	}
	h.mu.RUnlock()

	logrus.Info("WebSocket Hub已关闭")
}

// newConnection 创建连接实例
func newConnection(hub *Hub, ws *websocket.Conn, remoteAddr string) *Connection {
	now := time.Now()
	return &Connection{
		id:          generateConnectionID(),
		Conn:        ws,
		Send:        make(chan []byte, hub.config.MessageBufferSize),
		Hub:         hub,
		RemoteAddr:  remoteAddr,
		ConnectedAt: now,
		lastPing:    now,
	}
}

// generateConnectionID 生成唯一的连接ID
func generateConnectionID() string {
	return "conn_" + uuid.NewString()
}

// ID 连接ID
func (c *Connection) ID() string {
	return c.id
}

// LastPing 最近一次收到 pong 的时间
func (c *Connection) LastPing() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPing
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastPing = time.Now()
	c.mu.Unlock()
}

// Closed 连接是否已关闭
func (c *Connection) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// SendJSON 序列化后放入发送队列。连接已关闭时返回 ErrTransportClosed，
// 缓冲区在限定时间内未腾出空间时返回 ErrSendBufferFull。
func (c *Connection) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode message")
	}

	err = c.enqueue(data)
	if errors.GetCode(err) == errors.CodeSendBufferFull {
		logrus.Warnf("连接 %s 发送缓冲区已满", c.id)
		if c.Hub != nil && c.Hub.config.CloseOnBackpressure {
			c.closeWith(websocket.CloseTryAgainLater, "send buffer full")
		}
	}
	return err
}

func (c *Connection) enqueue(data []byte) error {
	// 持有读锁期间 Send 不会被关闭
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return errors.ErrTransportClosed.WithContext("conn", c.id)
	}

	dropOnFull := c.Hub == nil || c.Hub.config.DropOnFull
	if dropOnFull {
		select {
		case c.Send <- data:
			return nil
		default:
			return errors.ErrSendBufferFull.WithContext("conn", c.id)
		}
	}

	// 非丢弃模式：限定等待时长
	timeout := c.Hub.config.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeoutMs * time.Millisecond
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.Send <- data:
		return nil
	case <-timer.C:
		return errors.ErrSendBufferFull.WithContext("conn", c.id)
	}
}

// markClosed 标记关闭并关闭发送通道，写协程随后发出 close 帧
func (c *Connection) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// closeWith 发送 close 控制帧并断开底层连接
func (c *Connection) closeWith(code int, reason string) {
	if c.Conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.Conn.Close()
}
