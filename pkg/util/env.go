package util

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// GetEnv 读取环境变量，去掉首尾空白
func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetIntEnv 读取整数环境变量，未设置或无法解析时返回 0
func GetIntEnv(key string) int64 {
	v := GetEnv(key)
	if v == "" {
		return 0
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return 0
	}
	return n
}

// GetBoolEnv accepts true/false/1/0 (anything strconv.ParseBool takes)
func GetBoolEnv(key string) (value bool, set bool) {
	v := GetEnv(key)
	if v == "" {
		return false, false
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// GetDurationEnv reads "30s" style values; a bare number is taken in the given unit
func GetDurationEnv(key string, unit time.Duration) time.Duration {
	v := GetEnv(key)
	if v == "" {
		return 0
	}
	if n, err := cast.ToInt64E(v); err == nil {
		return time.Duration(n) * unit
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return 0
	}
	return d
}
