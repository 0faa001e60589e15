package logging

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

// LogFields represents structured logging key/value pairs used by domainbridge.
type LogFields map[string]any

// BridgeLogger is the minimal logging contract required by the bridge. It maps
// directly onto Watermill's logging needs so applications can adapt their
// existing loggers without depending on slog.
type BridgeLogger interface {
	With(fields LogFields) BridgeLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

var logLevelMapping = map[slog.Level]slog.Level{
	slog.LevelDebug: slog.LevelDebug,
	slog.LevelInfo:  slog.LevelInfo,
	slog.LevelWarn:  slog.LevelWarn,
	slog.LevelError: slog.LevelError,
}

// NewSlogBridgeLogger wraps a slog.Logger so it satisfies the BridgeLogger
// interface.
func NewSlogBridgeLogger(log *slog.Logger) BridgeLogger {
	if log == nil {
		panic("domainbridge: slog logger cannot be nil")
	}
	return NewWatermillBridgeLogger(watermill.NewSlogLoggerWithLevelMapping(log, logLevelMapping))
}

// NewWatermillBridgeLogger wraps an existing Watermill LoggerAdapter so it can
// be supplied to the bridge.
func NewWatermillBridgeLogger(logger watermill.LoggerAdapter) BridgeLogger {
	if logger == nil {
		panic("domainbridge: watermill logger cannot be nil")
	}
	return &watermillBridgeLogger{inner: logger}
}

// Nop returns a logger that discards everything. Used as the default when no
// logger is supplied.
func Nop() BridgeLogger {
	return &watermillBridgeLogger{inner: watermill.NopLogger{}}
}

type watermillBridgeLogger struct {
	inner watermill.LoggerAdapter
}

func (w *watermillBridgeLogger) With(fields LogFields) BridgeLogger {
	return &watermillBridgeLogger{inner: w.inner.With(toWatermillFields(fields))}
}

func (w *watermillBridgeLogger) Debug(msg string, fields LogFields) {
	w.inner.Debug(msg, toWatermillFields(fields))
}

func (w *watermillBridgeLogger) Info(msg string, fields LogFields) {
	w.inner.Info(msg, toWatermillFields(fields))
}

func (w *watermillBridgeLogger) Error(msg string, err error, fields LogFields) {
	w.inner.Error(msg, err, toWatermillFields(fields))
}

func (w *watermillBridgeLogger) Trace(msg string, fields LogFields) {
	w.inner.Trace(msg, toWatermillFields(fields))
}

type bridgeLoggerAdapter struct {
	base BridgeLogger
}

// NewWatermillAdapter converts a BridgeLogger into a Watermill LoggerAdapter so
// fabric backends can reuse the same logger abstraction.
func NewWatermillAdapter(log BridgeLogger) watermill.LoggerAdapter {
	if log == nil {
		panic("domainbridge: BridgeLogger cannot be nil")
	}
	return &bridgeLoggerAdapter{base: log}
}

func (s *bridgeLoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	s.base.Error(msg, err, fromWatermillFields(fields))
}

func (s *bridgeLoggerAdapter) Info(msg string, fields watermill.LogFields) {
	s.base.Info(msg, fromWatermillFields(fields))
}

func (s *bridgeLoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	s.base.Debug(msg, fromWatermillFields(fields))
}

func (s *bridgeLoggerAdapter) Trace(msg string, fields watermill.LogFields) {
	s.base.Trace(msg, fromWatermillFields(fields))
}

func (s *bridgeLoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &bridgeLoggerAdapter{base: s.base.With(fromWatermillFields(fields))}
}

func toWatermillFields(fields LogFields) watermill.LogFields {
	if len(fields) == 0 {
		return nil
	}
	return watermill.LogFields(fields)
}

func fromWatermillFields(fields watermill.LogFields) LogFields {
	if len(fields) == 0 {
		return nil
	}
	return LogFields(fields)
}
