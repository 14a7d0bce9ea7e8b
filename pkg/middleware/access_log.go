package middleware

import (
	"time"

	"RubiSOS/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/mssola/user_agent"
	"go.uber.org/zap"
)

// AccessLog 记录请求日志，附带客户端平台信息（移动端排查用）
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		fields = append(fields, clientFields(c.GetHeader("User-Agent"))...)

		if c.Writer.Status() >= 500 {
			logger.Warn("http request", fields...)
			return
		}
		logger.Debug("http request", fields...)
	}
}

func clientFields(raw string) []zap.Field {
	if raw == "" {
		return nil
	}
	ua := user_agent.New(raw)
	browser, version := ua.Browser()
	return []zap.Field{
		zap.String("os", ua.OS()),
		zap.String("platform", ua.Platform()),
		zap.String("browser", browser+" "+version),
		zap.Bool("mobile", ua.Mobile()),
	}
}
