package websocket

import "time"

const (
	// 默认配置值
	DefaultMaxConnections    = 10000
	DefaultHeartbeatInterval = 30
	DefaultConnectionTimeout = 60
	DefaultMessageBufferSize = 256
	DefaultReadBufferSize    = 1024
	DefaultWriteBufferSize   = 1024
	DefaultMaxMessageSize    = 8192
	DefaultSendTimeoutMs     = 50

	// 写超时
	writeWait = 10 * time.Second

	// 环境变量配置键
	EnvWebSocketMaxConnections      = "WEBSOCKET_MAX_CONNECTIONS"
	EnvWebSocketHeartbeatInterval   = "WEBSOCKET_HEARTBEAT_INTERVAL"
	EnvWebSocketConnectionTimeout   = "WEBSOCKET_CONNECTION_TIMEOUT"
	EnvWebSocketMessageBufferSize   = "WEBSOCKET_MESSAGE_BUFFER_SIZE"
	EnvWebSocketEnableCompression   = "WEBSOCKET_ENABLE_COMPRESSION"
	EnvWebSocketCompressionLevel    = "WEBSOCKET_COMPRESSION_LEVEL"
	EnvWebSocketDropOnFull          = "WEBSOCKET_DROP_ON_FULL"
	EnvWebSocketReadBufferSize      = "WEBSOCKET_READ_BUFFER_SIZE"
	EnvWebSocketWriteBufferSize     = "WEBSOCKET_WRITE_BUFFER_SIZE"
	EnvWebSocketMaxMessageSize      = "WEBSOCKET_MAX_MESSAGE_SIZE"
	EnvWebSocketCloseOnBackpressure = "WEBSOCKET_CLOSE_ON_BACKPRESSURE"
	EnvWebSocketSendTimeoutMs       = "WEBSOCKET_SEND_TIMEOUT_MS"

	// 关闭原因
	closeReasonMalformed = "malformed message"
	closeReasonFull      = "connection limit exceeded"
	closeReasonShutdown  = "server shutting down"

	// 路由路径
	RouteWebSocket       = "/ws"
	RouteWebSocketStats  = "/ws/stats"
	RouteWebSocketHealth = "/ws/health"
)
