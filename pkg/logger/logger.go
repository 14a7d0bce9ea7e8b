package logger

import (
	"os"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string `env:"LOG_LEVEL"`
	Filename   string `env:"LOG_FILENAME"`
	MaxSize    int    `env:"LOG_MAX_SIZE"`
	MaxAge     int    `env:"LOG_MAX_AGE"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS"`
}

var (
	mu  sync.RWMutex
	lg  = zap.NewNop()
	lvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Init builds the process logger. An empty Filename logs to stdout with the
// console encoder; otherwise JSON lines go to a lumberjack rotated file.
func Init(cfg LogConfig, mode string) error {
	if cfg.Level != "" {
		if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
			return err
		}
	}

	var core zapcore.Core
	if cfg.Filename == "" {
		encCfg := zap.NewDevelopmentEncoderConfig()
		if mode == "release" {
			encCfg = zap.NewProductionEncoderConfig()
		}
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), lvl)
	} else {
		w := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    orDefault(cfg.MaxSize, 100),
			MaxAge:     orDefault(cfg.MaxAge, 7),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		core = zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), lvl)
	}

	Set(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)))
	return nil
}

// Set replaces the process logger
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	lg = l
	mu.Unlock()
}

// L returns the process logger
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return lg
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

// Sync flushes buffered entries
func Sync() error { return L().Sync() }

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}
