package logger

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Dir is where NewLog writes its files.
var Dir = "log"

func ensureLogDir() string {
	_ = os.MkdirAll(Dir, 0o755)
	return Dir
}

// NewLog tees JSON records to stdout and to a rotated file under Dir.
func NewLog(n string) *zap.Logger {
	dir := ensureLogDir()

	cfg := zap.NewProductionEncoderConfig()
	cfg.MessageKey = zapcore.OmitKey

	console := zapcore.Lock(os.Stdout)

	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(dir, n),
		MaxSize:    50, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
	})

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, zap.InfoLevel),
		zapcore.NewCore(zapcore.NewJSONEncoder(cfg), console, zap.InfoLevel),
	)
	return zap.New(core)
}

// NewConsole logs JSON to stdout only. Inside a host runtime stdout is the
// console, so this is what entry points log failures to.
func NewConsole() *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	return zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.Lock(os.Stdout), zap.DebugLevel))
}

var (
	accessMu  sync.Mutex
	accessLog *zap.Logger
)

// AccessLogger returns the access logger, creating "http-access.log" on first use.
func AccessLogger() *zap.Logger {
	accessMu.Lock()
	defer accessMu.Unlock()
	if accessLog == nil {
		accessLog = NewLog("http-access.log")
	}
	return accessLog
}

// SetAccessLogger lets tests/CLIs override the access logger.
func SetAccessLogger(l *zap.Logger) {
	if l == nil {
		return
	}
	accessMu.Lock()
	accessLog = l
	accessMu.Unlock()
}

func ProvideLogger() *zap.Logger { return NewLog("system.log") }

var Module = fx.Options(
	fx.Provide(ProvideLogger),
)
