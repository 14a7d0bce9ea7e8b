package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler WebSocket HTTP处理器
type Handler struct {
	hub        *Hub
	newSession SessionFactory
}

// NewHandler 创建新的WebSocket处理器
func NewHandler(hub *Hub, newSession SessionFactory) *Handler {
	return &Handler{
		hub:        hub,
		newSession: newSession,
	}
}

// RegisterRoutes 注册连接与健康检查路由，middleware 只作用于升级路由
func RegisterRoutes(r gin.IRoutes, handler *Handler, middleware ...gin.HandlerFunc) {
	upgrade := append(append([]gin.HandlerFunc{}, middleware...), handler.HandleWebSocket)
	r.GET(RouteWebSocket, upgrade...)
	r.GET(RouteWebSocketHealth, handler.HealthCheck)
}

// HandleWebSocket 处理WebSocket连接请求，连接是匿名的，身份由 register 消息声明
func (h *Handler) HandleWebSocket(c *gin.Context) {
	Serve(h.hub, c.Writer, c.Request, h.newSession)
}

// Stats 传输层统计
func (h *Handler) Stats() gin.H {
	return gin.H{
		"total_connections":   h.hub.GetConnectionCount(),
		"max_connections":     h.hub.config.MaxConnections,
		"heartbeat_interval":  h.hub.config.HeartbeatInterval.String(),
		"connection_timeout":  h.hub.config.ConnectionTimeout.String(),
		"message_buffer_size": h.hub.config.MessageBufferSize,
	}
}

// HealthCheck WebSocket健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	// 检查Hub是否正常运行
	if h.hub.ctx.Err() != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"error":   "WebSocket Hub已关闭",
			"details": h.hub.ctx.Err().Error(),
		})
		return
	}

	// 检查连接数是否正常
	totalConnections := h.hub.GetConnectionCount()
	maxConnections := h.hub.config.MaxConnections

	status := "healthy"
	if totalConnections >= maxConnections*9/10 { // 90%以上认为警告
		status = "warning"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"total_connections": totalConnections,
		"max_connections":   maxConnections,
		"connection_usage":  float64(totalConnections) / float64(maxConnections) * 100,
		"hub_running":       true,
		"timestamp":         time.Now().Unix(),
	})
}
