package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"RubiSOS/pkg/logger"

	"github.com/spf13/cast"
)

// ProximityConfig 选择告警接收者的策略
type ProximityConfig struct {
	Mode          string   `env:"PROXIMITY_MODE"` // radius | pair
	RadiusKm      float64  `env:"PROXIMITY_RADIUS_KM"`
	Pair          []string `env:"PROXIMITY_PAIR"`
	MaxRecipients int      `env:"PROXIMITY_MAX_RECIPIENTS"`
}

type Config struct {
	Addr           string `env:"ADDR"`
	Mode           string `env:"MODE"`
	Log            logger.LogConfig
	Proximity      ProximityConfig
	AlertRetention time.Duration `env:"ALERT_RETENTION"`
	StrictErrors   bool          `env:"STRICT_ERRORS"`
	RateLimit      string        `env:"WS_RATE_LIMIT"`
	StatsSchedule  string        `env:"STATS_SCHEDULE"`
	MetricsPath    string        `env:"METRICS_PATH"`
}

const (
	ProximityRadius = "radius"
	ProximityPair   = "pair"
)

var GlobalConfig *Config

// Default returns the configuration used when no environment is set
func Default() *Config {
	return &Config{
		Addr: ":8765",
		Mode: "debug",
		Log:  logger.LogConfig{Level: "info"},
		Proximity: ProximityConfig{
			Mode:     ProximityRadius,
			RadiusKm: 10,
			Pair:     []string{"yosi", "tami"},
		},
		RateLimit:     "60-M",
		StatsSchedule: "@every 30s",
		MetricsPath:   "/metrics",
	}
}

func Load() error {
	cfg := FromEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return err
	}
	GlobalConfig = cfg
	return nil
}

// FromEnv overlays the variables found by lookup onto Default()
func FromEnv(lookup func(string) (string, bool)) *Config {
	cfg := Default()
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := get("ADDR"); ok {
		cfg.Addr = v
	}
	if v, ok := get("MODE"); ok {
		cfg.Mode = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := get("LOG_FILENAME"); ok {
		cfg.Log.Filename = v
	}
	if v, ok := get("LOG_MAX_SIZE"); ok {
		cfg.Log.MaxSize = cast.ToInt(v)
	}
	if v, ok := get("LOG_MAX_AGE"); ok {
		cfg.Log.MaxAge = cast.ToInt(v)
	}
	if v, ok := get("LOG_MAX_BACKUPS"); ok {
		cfg.Log.MaxBackups = cast.ToInt(v)
	}
	if v, ok := get("PROXIMITY_MODE"); ok {
		cfg.Proximity.Mode = strings.ToLower(v)
	}
	if v, ok := get("PROXIMITY_RADIUS_KM"); ok {
		if km := cast.ToFloat64(v); km > 0 {
			cfg.Proximity.RadiusKm = km
		}
	}
	if v, ok := get("PROXIMITY_PAIR"); ok {
		if pair := splitList(v); len(pair) == 2 {
			cfg.Proximity.Pair = pair
		}
	}
	if v, ok := get("PROXIMITY_MAX_RECIPIENTS"); ok {
		cfg.Proximity.MaxRecipients = cast.ToInt(v)
	}
	if v, ok := get("ALERT_RETENTION"); ok {
		cfg.AlertRetention = cast.ToDuration(v)
	}
	if v, ok := get("STRICT_ERRORS"); ok {
		cfg.StrictErrors = cast.ToBool(v)
	}
	if v, ok := get("WS_RATE_LIMIT"); ok {
		cfg.RateLimit = v
	}
	if v, ok := get("STATS_SCHEDULE"); ok {
		cfg.StatsSchedule = v
	}
	if v, ok := get("METRICS_PATH"); ok {
		cfg.MetricsPath = v
	}
	return cfg
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate 检查组合后的配置
func (c *Config) Validate() error {
	switch c.Proximity.Mode {
	case ProximityRadius:
		if c.Proximity.RadiusKm <= 0 {
			return fmt.Errorf("PROXIMITY_RADIUS_KM must be positive, got %v", c.Proximity.RadiusKm)
		}
	case ProximityPair:
		if len(c.Proximity.Pair) != 2 || c.Proximity.Pair[0] == c.Proximity.Pair[1] {
			return fmt.Errorf("PROXIMITY_PAIR needs two distinct identities, got %v", c.Proximity.Pair)
		}
	default:
		return fmt.Errorf("unknown PROXIMITY_MODE %q", c.Proximity.Mode)
	}
	if c.Proximity.MaxRecipients < 0 {
		return fmt.Errorf("PROXIMITY_MAX_RECIPIENTS must not be negative")
	}
	if c.AlertRetention < 0 {
		return fmt.Errorf("ALERT_RETENTION must not be negative")
	}
	switch c.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("unknown MODE %q", c.Mode)
	}
	return nil
}
