package websocket

import (
	"fmt"
	"time"

	"RubiSOS/pkg/util"
)

// LoadConfigFromEnv 从环境变量加载WebSocket配置
func LoadConfigFromEnv() *Config {
	config := DefaultConfig()

	if maxConnections := util.GetIntEnv(EnvWebSocketMaxConnections); maxConnections > 0 {
		config.MaxConnections = maxConnections
	}

	if heartbeatInterval := util.GetDurationEnv(EnvWebSocketHeartbeatInterval, time.Second); heartbeatInterval > 0 {
		config.HeartbeatInterval = heartbeatInterval
	}

	if connectionTimeout := util.GetDurationEnv(EnvWebSocketConnectionTimeout, time.Second); connectionTimeout > 0 {
		config.ConnectionTimeout = connectionTimeout
	}

	if messageBufferSize := util.GetIntEnv(EnvWebSocketMessageBufferSize); messageBufferSize > 0 {
		config.MessageBufferSize = int(messageBufferSize)
	}

	if enableCompression, ok := util.GetBoolEnv(EnvWebSocketEnableCompression); ok {
		config.EnableCompression = enableCompression
	}

	if compressionLevel := util.GetIntEnv(EnvWebSocketCompressionLevel); compressionLevel != 0 {
		config.CompressionLevel = int(compressionLevel)
	}

	if dropOnFull, ok := util.GetBoolEnv(EnvWebSocketDropOnFull); ok {
		config.DropOnFull = dropOnFull
	}

	if readBuf := util.GetIntEnv(EnvWebSocketReadBufferSize); readBuf > 0 {
		config.ReadBufferSize = int(readBuf)
	}

	if writeBuf := util.GetIntEnv(EnvWebSocketWriteBufferSize); writeBuf > 0 {
		config.WriteBufferSize = int(writeBuf)
	}

	if maxMsg := util.GetIntEnv(EnvWebSocketMaxMessageSize); maxMsg > 0 {
		config.MaxMessageSize = int(maxMsg)
	}

	if closeOnBp, ok := util.GetBoolEnv(EnvWebSocketCloseOnBackpressure); ok {
		config.CloseOnBackpressure = closeOnBp
	}

	if sendTimeout := util.GetDurationEnv(EnvWebSocketSendTimeoutMs, time.Millisecond); sendTimeout > 0 {
		config.SendTimeout = sendTimeout
	}

	return config
}

// ValidateConfig 验证WebSocket配置
func ValidateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("配置不能为空")
	}

	if config.MaxConnections <= 0 {
		return fmt.Errorf("最大连接数必须大于0")
	}

	if config.HeartbeatInterval <= 0 {
		return fmt.Errorf("心跳间隔必须大于0")
	}

	if config.ConnectionTimeout <= 0 {
		return fmt.Errorf("连接超时时间必须大于0")
	}

	if config.MessageBufferSize <= 0 {
		return fmt.Errorf("消息缓冲区大小必须大于0")
	}

	if config.CompressionLevel < -2 || config.CompressionLevel > 9 {
		return fmt.Errorf("压缩等级必须在-2到9之间")
	}

	if config.ReadBufferSize <= 0 || config.WriteBufferSize <= 0 {
		return fmt.Errorf("读/写缓冲区大小必须大于0")
	}

	if config.MaxMessageSize <= 0 {
		return fmt.Errorf("最大消息大小必须大于0")
	}

	// 心跳间隔应该小于连接超时时间
	if config.HeartbeatInterval >= config.ConnectionTimeout {
		return fmt.Errorf("心跳间隔必须小于连接超时时间")
	}

	if !config.DropOnFull && config.SendTimeout <= 0 {
		return fmt.Errorf("未启用 DropOnFull 时必须设置 send timeout")
	}

	return nil
}

// GetConfigSummary 获取配置摘要
func GetConfigSummary(config *Config) map[string]interface{} {
	return map[string]interface{}{
		"max_connections":       config.MaxConnections,
		"heartbeat_interval":    config.HeartbeatInterval.String(),
		"connection_timeout":    config.ConnectionTimeout.String(),
		"message_buffer_size":   config.MessageBufferSize,
		"read_buffer_size":      config.ReadBufferSize,
		"write_buffer_size":     config.WriteBufferSize,
		"max_message_size":      config.MaxMessageSize,
		"enable_compression":    config.EnableCompression,
		"compression_level":     config.CompressionLevel,
		"drop_on_full":          config.DropOnFull,
		"close_on_backpressure": config.CloseOnBackpressure,
		"send_timeout":          config.SendTimeout.String(),
	}
}

// CloneConfig 克隆配置
func CloneConfig(config *Config) *Config {
	if config == nil {
		return nil
	}
	clone := *config
	return &clone
}

// MergeConfig 合并配置（后面的配置会覆盖前面的）
func MergeConfig(configs ...*Config) *Config {
	if len(configs) == 0 {
		return DefaultConfig()
	}

	result := CloneConfig(configs[0])
	if result == nil {
		result = DefaultConfig()
	}

	for _, config := range configs[1:] {
		if config == nil {
			continue
		}

		if config.MaxConnections > 0 {
			result.MaxConnections = config.MaxConnections
		}
		if config.HeartbeatInterval > 0 {
			result.HeartbeatInterval = config.HeartbeatInterval
		}
		if config.ConnectionTimeout > 0 {
			result.ConnectionTimeout = config.ConnectionTimeout
		}
		if config.MessageBufferSize > 0 {
			result.MessageBufferSize = config.MessageBufferSize
		}
		if config.ReadBufferSize > 0 {
			result.ReadBufferSize = config.ReadBufferSize
		}
		if config.WriteBufferSize > 0 {
			result.WriteBufferSize = config.WriteBufferSize
		}
		if config.MaxMessageSize > 0 {
			result.MaxMessageSize = config.MaxMessageSize
		}
		if config.SendTimeout > 0 {
			result.SendTimeout = config.SendTimeout
		}
		if config.CompressionLevel != 0 { // 允许-2..9，0表示未显式设置
			result.CompressionLevel = config.CompressionLevel
		}

		// 布尔值直接覆盖
		result.EnableCompression = config.EnableCompression
		result.DropOnFull = config.DropOnFull
		result.CloseOnBackpressure = config.CloseOnBackpressure
	}

	return result
}
