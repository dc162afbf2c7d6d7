package registry

import "go.uber.org/zap"

// ZapLogger adapts a zap logger to the Logger interface, mapping the
// key-value argument pairs onto zap's sugared variadic form.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps the given zap logger. A nil logger falls back to the
// no-op zap core.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{sugar: logger.Sugar()}
}

// Debug logs at debug level.
func (l *ZapLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }

// Info logs at info level.
func (l *ZapLogger) Info(msg string, args ...any) { l.sugar.Infow(msg, args...) }

// Warn logs at warn level.
func (l *ZapLogger) Warn(msg string, args ...any) { l.sugar.Warnw(msg, args...) }

// Error logs at error level.
func (l *ZapLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }
