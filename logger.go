package btj7c

import "go.uber.org/zap"

// Logger denotes a generic logging interface, avoiding any hard dependency on
// a particular logging framework
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// NullLogger denotes a logger that does exactly nothing (used as default)
type NullLogger struct{}

// Debugf fulfils the Logger interface (no-op)
func (l *NullLogger) Debugf(format string, args ...interface{}) {}

// Infof fulfils the Logger interface (no-op)
func (l *NullLogger) Infof(format string, args ...interface{}) {}

// Warnf fulfils the Logger interface (no-op)
func (l *NullLogger) Warnf(format string, args ...interface{}) {}

// Errorf fulfils the Logger interface (no-op)
func (l *NullLogger) Errorf(format string, args ...interface{}) {}

// Fatalf fulfils the Logger interface (no-op)
func (l *NullLogger) Fatalf(format string, args ...interface{}) {}

// NewDefaultLogger instantiates a default (zap-based) sugared logger
func NewDefaultLogger(debug bool) Logger {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}

	zapLogger, err := cfg.Build()
	if err != nil {
		return &NullLogger{}
	}

	return zapLogger.Sugar()
}
