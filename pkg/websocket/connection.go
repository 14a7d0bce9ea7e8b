package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// SessionHandler 处理一个连接上的入站帧。HandleMessage 返回错误时连接被关闭，
// Close 在连接结束后恰好调用一次。
type SessionHandler interface {
	HandleMessage(ctx context.Context, frame []byte) error
	Close()
}

// SessionFactory 为新连接创建会话
type SessionFactory func(conn *Connection) SessionHandler

// newUpgrader 根据配置创建WebSocket升级器
func newUpgrader(cfg *Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			// 客户端是移动端应用，不校验 Origin
			return true
		},
		EnableCompression: cfg.EnableCompression,
	}
}

// Serve 升级HTTP连接并为其启动读写协程
func Serve(hub *Hub, w http.ResponseWriter, r *http.Request, newSession SessionFactory) {
	if hub.Full() {
		logrus.Warnf("拒绝来自 %s 的连接: 达到上限", r.RemoteAddr)
		http.Error(w, closeReasonFull, http.StatusServiceUnavailable)
		return
	}

	// 升级HTTP连接为WebSocket
	upgrader := newUpgrader(hub.config)
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("WebSocket升级失败: %v", err)
		return
	}

	// 压缩设置
	if hub.config.EnableCompression {
		ws.EnableWriteCompression(true)
		if hub.config.CompressionLevel != 0 {
			_ = ws.SetCompressionLevel(hub.config.CompressionLevel)
		}
	}

	conn := newConnection(hub, ws, r.RemoteAddr)
	// 升级期间可能有其他连接抢先注册
	if err := hub.Register(conn); err != nil {
		conn.closeWith(websocket.CloseTryAgainLater, closeReasonFull)
		return
	}

	session := newSession(conn)
	go conn.writePump()
	go conn.readPump(session)
}

// readPump 读取消息的协程，按到达顺序逐帧交给会话
func (c *Connection) readPump(session SessionHandler) {
	defer func() {
		c.Hub.Unregister(c)
		session.Close()
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(int64(c.Hub.config.MaxMessageSize))
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		return c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logrus.Errorf("WebSocket读取错误: %v", err)
			}
			return
		}

		if err := session.HandleMessage(c.Hub.ctx, message); err != nil {
			logrus.Warnf("连接 %s 收到无法解析的消息，断开: %v", c.id, err)
			c.closeWith(websocket.CloseInvalidFramePayloadData, closeReasonMalformed)
			return
		}
	}
}

// writePump 发送消息的协程，每条消息单独一帧
func (c *Connection) writePump() {
	interval := c.Hub.config.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval * time.Second
	}
	ticker := time.NewTicker(time.Duration(float64(interval) * 0.9))
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.Debugf("连接 %s 写入失败: %v", c.id, err)
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
