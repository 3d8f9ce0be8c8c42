package pool

import (
	"sync"

	"go.uber.org/zap"

	"github.com/x64dbg/bridge/errors"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the pool package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the pool package's logger.
// This must be called before creating pools.
func SetLogger(l *zap.Logger) {
	logger = l
}

// violation logs the error under construction in b, then panics with it.
func violation(b *errors.Builder) {
	err := b.Build()
	Logger().Error("pool contract violation",
		zap.String("call", err.Call),
		zap.String("type", err.Type),
		zap.Any("handle", err.Value),
		zap.String("detail", err.Detail))
	b.Contract()
}
