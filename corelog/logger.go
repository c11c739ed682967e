// Package corelog is the consensus core's structured logging facade. It
// wraps go.uber.org/zap, the logging library already pulled in by the
// teacher repo's own log package, instead of introducing a second
// dependency for the same concern.
package corelog

import (
	"go.uber.org/zap"
)

// Logger is the interface every component depends on, so call sites never
// reach for the zap.Logger concrete type directly and tests can swap in
// zap's observer core.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	// Fatal logs at error level and then halts the process. Reserved for
	// KindStore failures (spec.md §7: "the engine must halt and require
	// operator intervention").
	Fatal(msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
}

type zapLogger struct {
	l *zap.Logger
}

// New builds a production JSON logger.
func New() (Logger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &zapLogger{l: l}, nil
}

// NewNop returns a logger that discards everything, for tests and
// benchmarks — mirrors the teacher's log.NewNoOpLogger().
func NewNop() Logger {
	return &zapLogger{l: zap.NewNop()}
}

func (z *zapLogger) Debug(msg string, fields ...zap.Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...zap.Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...zap.Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...zap.Field) { z.l.Error(msg, fields...) }
func (z *zapLogger) Fatal(msg string, fields ...zap.Field) { z.l.Fatal(msg, fields...) }
func (z *zapLogger) With(fields ...zap.Field) Logger {
	return &zapLogger{l: z.l.With(fields...)}
}
