package logs

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileName is the log file created in the config directory.
const FileName = "termplay.log"

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// Setup installs a JSON logger appending to FileName in dir. The terminal is
// owned by the video, so nothing is ever logged to stdout or stderr. Debug
// records are kept only when verbose is set.
func Setup(dir string, verbose bool) (string, func(), error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", func() {}, err
	}
	logPath := filepath.Join(dir, FileName)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return logPath, func() {}, err
	}

	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level)
	l := zap.New(core, zap.ErrorOutput(zapcore.AddSync(f)))
	Use(l)
	return logPath, func() {
		_ = l.Sync()
		Use(nil)
		_ = f.Close()
	}, nil
}

// Use replaces the process logger.
func Use(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	logger = l
	mu.Unlock()
}

// L returns the process logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// LogV prints a formatted log message only when verbose logging is enabled.
func LogV(format string, args ...interface{}) {
	L().Sugar().Debugf(format, args...)
}
