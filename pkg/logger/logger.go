package logger

import (
	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
)

// Logger is re-exported from eigensdk-go so callers don't import sdklogging separately.
type Logger = sdklogging.Logger

// New builds the zap backed logger. Production logs are json at info level,
// development logs are colored console lines at debug level.
func New(production bool) (Logger, error) {
	if production {
		return sdklogging.NewZapLogger(sdklogging.Production)
	}
	return sdklogging.NewZapLogger(sdklogging.Development)
}

// Success logs an info line tagged status=success. The wallet runs report
// three outcomes (success/warning/error) and zap has no success level.
func Success(l Logger, msg string, keysAndValues ...interface{}) {
	EnsureLogger(l).Info(msg, append([]interface{}{"status", "success"}, keysAndValues...)...)
}

// NoOpLogger drops everything. Used in tests and wherever a logger is optional.
type NoOpLogger struct{}

func (l *NoOpLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *NoOpLogger) Infof(format string, args ...interface{})       {}
func (l *NoOpLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (l *NoOpLogger) Debugf(format string, args ...interface{})      {}
func (l *NoOpLogger) Error(msg string, keysAndValues ...interface{}) {}
func (l *NoOpLogger) Errorf(format string, args ...interface{})      {}
func (l *NoOpLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (l *NoOpLogger) Warnf(format string, args ...interface{})       {}
func (l *NoOpLogger) Fatal(msg string, keysAndValues ...interface{}) {}
func (l *NoOpLogger) Fatalf(format string, args ...interface{})      {}
func (l *NoOpLogger) With(keysAndValues ...interface{}) Logger       { return l }
func (l *NoOpLogger) WithComponent(componentName string) Logger      { return l }
func (l *NoOpLogger) WithName(name string) Logger                    { return l }
func (l *NoOpLogger) WithServiceName(serviceName string) Logger      { return l }
func (l *NoOpLogger) WithHostName(hostName string) Logger            { return l }
func (l *NoOpLogger) Sync() error                                    { return nil }

func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}

// EnsureLogger returns l, or a no-op logger when l is nil.
func EnsureLogger(l Logger) Logger {
	if l == nil {
		return NewNoOpLogger()
	}
	return l
}
