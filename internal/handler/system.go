package handlers

import (
	"net/http"
	"time"

	"RubiSOS/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// Stats 连接、注册客户端与告警统计
func (h *Handlers) Stats(c *gin.Context) {
	stats := h.relay.Stats()
	c.JSON(http.StatusOK, gin.H{
		"connections":        h.hub.GetConnectionCount(),
		"registered_clients": stats.RegisteredClients,
		"alerts":             stats.Alerts,
		"transport":          h.ws.Stats(),
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheck 健康检查接口
func (h *Handlers) HealthCheck(c *gin.Context) {
	if h.hub.Context().Err() != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "hub closed"})
		return
	}

	stats := h.relay.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"onlineUsers":  stats.RegisteredClients,
		"activeAlerts": stats.Alerts.Active,
	})
}

// Nearby 查询某坐标附近的在线用户，radius 单位公里
func (h *Handlers) Nearby(c *gin.Context) {
	lat, errLat := cast.ToFloat64E(c.Query("lat"))
	lng, errLng := cast.ToFloat64E(c.Query("lng"))
	origin := relay.Point{Lat: lat, Lng: lng}
	if c.Query("lat") == "" || c.Query("lng") == "" || errLat != nil || errLng != nil || !origin.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng must be valid coordinates"})
		return
	}

	radius := h.radiusKm
	if raw := c.Query("radius"); raw != "" {
		r, err := cast.ToFloat64E(raw)
		if err != nil || r <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "radius must be a positive number"})
			return
		}
		radius = r
	}

	users := relay.Nearby(h.relay.Registry().Snapshot(), origin, radius, "")
	if users == nil {
		users = []relay.Neighbor{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(users), "radiusKm": radius, "users": users})
}
