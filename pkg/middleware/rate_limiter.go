package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"RubiSOS/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

// RateLimiterConfig 连接建立的限流配置
//
// 示例：
// Rate: "60-M"、Identifier: "ip"/"header"、HeaderName: "X-Device-ID"
// WhitelistCIDRs/BlacklistCIDRs: ["10.0.0.0/8", "127.0.0.1/32"]
// AddHeaders: 是否写标准限流响应头；DenyStatus/DenyMessage: 自定义拒绝响应
type RateLimiterConfig struct {
	Rate           string   `json:"rate"`        // e.g. "60-M", "1000-H"
	Identifier     string   `json:"identifier"`  // ip|header
	HeaderName     string   `json:"header_name"` // 当 identifier=header 时使用
	WhitelistCIDRs []string `json:"whitelist_cidrs"`
	BlacklistCIDRs []string `json:"blacklist_cidrs"`
	AddHeaders     bool     `json:"add_headers"`
	DenyStatus     int      `json:"deny_status"` // 默认 429
	DenyMessage    string   `json:"deny_message"`
}

// MetricsObserver 指标上报接口
type MetricsObserver interface {
	OnAllow(route string)
	OnDeny(route string, reason string)
}

// PrometheusObserver 基于 Prometheus 的实现
type PrometheusObserver struct {
	allow *prometheus.CounterVec
	deny  *prometheus.CounterVec
}

// NewPrometheusObserver 创建 Prometheus 观察者，reg 为 nil 时注册到默认 registry
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &PrometheusObserver{
		allow: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_rate_limit_allow_total",
			Help: "Connection attempts let through by the rate limiter",
		}, []string{"route"}),
		deny: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_rate_limit_deny_total",
			Help: "Connection attempts rejected by the rate limiter",
		}, []string{"route", "reason"}),
	}
}

func (p *PrometheusObserver) OnAllow(route string)               { p.allow.WithLabelValues(route).Inc() }
func (p *PrometheusObserver) OnDeny(route string, reason string) { p.deny.WithLabelValues(route, reason).Inc() }

// RateLimiter 面向实例的限流器
type RateLimiter struct {
	cfg        RateLimiterConfig
	limiter    *limiter.Limiter
	observer   MetricsObserver
	whiteCIDRs []*net.IPNet
	blackCIDRs []*net.IPNet
}

// NewRateLimiter 构造限流器，store 为 nil 时使用内存存储
func NewRateLimiter(cfg RateLimiterConfig, store limiter.Store) (*RateLimiter, error) {
	if store == nil {
		store = memory.NewStore()
	}
	if cfg.Rate == "" {
		cfg.Rate = "60-M"
	}
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		return nil, err
	}

	l := &RateLimiter{
		cfg:        cfg,
		limiter:    limiter.New(store, rate),
		whiteCIDRs: compileCIDRs(cfg.WhitelistCIDRs),
		blackCIDRs: compileCIDRs(cfg.BlacklistCIDRs),
	}
	return l, nil
}

// WithObserver 配置指标观察者
func (l *RateLimiter) WithObserver(observer MetricsObserver) *RateLimiter {
	l.observer = observer
	return l
}

// Middleware 返回 Gin 中间件
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := clientIPFromRequest(c)
		if ipListed(clientIP, l.whiteCIDRs) {
			c.Next()
			return
		}
		if ipListed(clientIP, l.blackCIDRs) {
			l.reportDeny(c, "blacklist")
			l.denyTooMany(c)
			return
		}

		key := l.buildLimitKey(c, clientIP)
		context, err := l.limiter.Get(c, key)
		if err != nil {
			// 存储故障时放行
			logger.Warn("rate limiter store error", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if l.cfg.AddHeaders {
			setStandardHeaders(c, context)
		}
		if context.Reached {
			setRetryAfter(c, time.Until(time.Unix(context.Reset, 0)))
			l.reportDeny(c, "rate")
			l.denyTooMany(c)
			return
		}

		l.reportAllow(c)
		c.Next()
	}
}

func (l *RateLimiter) reportAllow(c *gin.Context) {
	if l.observer != nil {
		l.observer.OnAllow(routeOf(c))
	}
}

func (l *RateLimiter) reportDeny(c *gin.Context, reason string) {
	logger.Debug("connection rate limited", zap.String("ip", c.ClientIP()), zap.String("reason", reason))
	if l.observer != nil {
		l.observer.OnDeny(routeOf(c), reason)
	}
}

func (l *RateLimiter) buildLimitKey(c *gin.Context, ip string) string {
	if l.cfg.Identifier == "header" {
		if hv := strings.TrimSpace(c.GetHeader(l.cfg.HeaderName)); hv != "" {
			return "hdr:" + l.cfg.HeaderName + ":" + hv
		}
	}
	return "ip:" + ip
}

func (l *RateLimiter) denyTooMany(c *gin.Context) {
	status := l.cfg.DenyStatus
	if status == 0 {
		status = http.StatusTooManyRequests
	}
	msg := l.cfg.DenyMessage
	if msg == "" {
		msg = "Too Many Requests"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func routeOf(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return c.Request.URL.Path
}

func compileCIDRs(cidrs []string) []*net.IPNet {
	var out []*net.IPNet
	for _, c := range cidrs {
		if _, ipnet, err := net.ParseCIDR(strings.TrimSpace(c)); err == nil {
			out = append(out, ipnet)
		}
	}
	return out
}

func clientIPFromRequest(c *gin.Context) string {
	return strings.TrimPrefix(c.ClientIP(), "::ffff:")
}

func ipListed(ip string, nets []*net.IPNet) bool {
	if ip == "" {
		return false
	}
	pip := net.ParseIP(ip)
	if pip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(pip) {
			return true
		}
	}
	return false
}

func setStandardHeaders(c *gin.Context, ctx limiter.Context) {
	c.Header("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
	resetSec := int(time.Until(time.Unix(ctx.Reset, 0)).Seconds())
	if resetSec < 0 {
		resetSec = 0
	}
	c.Header("X-RateLimit-Reset", strconv.Itoa(resetSec))
}

func setRetryAfter(c *gin.Context, d time.Duration) {
	sec := int(d.Seconds())
	if sec < 0 {
		sec = 0
	}
	c.Header("Retry-After", strconv.Itoa(sec))
}
