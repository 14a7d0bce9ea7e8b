package handlers

import (
	"RubiSOS/internal/relay"
	"RubiSOS/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	RouteAPIHealth = "/api/health"
	RouteAPINearby = "/api/nearby"
)

type Handlers struct {
	relay    *relay.Relay
	hub      *websocket.Hub
	ws       *websocket.Handler
	gatherer prometheus.Gatherer
	radiusKm float64
}

// NewHandlers wires the HTTP surface. gatherer may be nil to skip /metrics;
// radiusKm is the default search radius for /api/nearby.
func NewHandlers(r *relay.Relay, hub *websocket.Hub, gatherer prometheus.Gatherer, radiusKm float64) *Handlers {
	h := &Handlers{
		relay:    r,
		hub:      hub,
		gatherer: gatherer,
		radiusKm: radiusKm,
	}
	h.ws = websocket.NewHandler(hub, h.newSession)
	return h
}

func (h *Handlers) newSession(conn *websocket.Connection) websocket.SessionHandler {
	return relay.NewSession(h.relay, conn)
}

// Register mounts every route. upgrade middleware only wraps the websocket upgrade.
func (h *Handlers) Register(engine *gin.Engine, metricsPath string, upgrade ...gin.HandlerFunc) {
	// Realtime channel
	websocket.RegisterRoutes(engine, h.ws, upgrade...)
	engine.GET(websocket.RouteWebSocketStats, h.Stats)

	// Read-only API
	api := engine.Group("")
	{
		api.GET(RouteAPIHealth, h.HealthCheck)
		api.GET(RouteAPINearby, h.Nearby)
	}

	if h.gatherer != nil && metricsPath != "" {
		engine.GET(metricsPath, gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}
