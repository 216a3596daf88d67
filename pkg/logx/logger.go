package logx

import (
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

const (
	LevelTrace = zerolog.TraceLevel
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Field decorates a log event. Fields apply in order; a repeated key is
// written twice and JSON consumers keep the last one.
type Field func(e *zerolog.Event)

func String(k, v string) Field { return func(e *zerolog.Event) { e.Str(k, v) } }
func Strings(k string, v []string) Field {
	return func(e *zerolog.Event) { e.Strs(k, v) }
}
func Int(k string, v int) Field     { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field { return func(e *zerolog.Event) { e.Int64(k, v) } }
func Uint64(k string, v uint64) Field {
	return func(e *zerolog.Event) { e.Uint64(k, v) }
}
func Bool(k string, v bool) Field { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Time(k string, v time.Time) Field { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field        { return func(e *zerolog.Event) { e.Interface(k, v) } }

func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Logger writes structured events.
//
// A Logger obtained from a Service follows later Service.Apply calls.
// The zero value discards everything.
type Logger struct {
	svc     *Service
	base    zerolog.Logger
	hasBase bool
	fields  []Field
}

// Nop returns a logger that never writes.
func Nop() Logger { return Logger{base: zerolog.Nop(), hasBase: true} }

// NewConsole returns a standalone console logger, used by CLI commands that
// do not start the full service.
func NewConsole(level string) Logger {
	setGlobals()
	zl := zerolog.New(consoleWriter(Stderr())).
		Level(ParseLevel(level, LevelInfo)).
		With().Timestamp().Logger()
	return Logger{base: zl, hasBase: true}
}

// FromZerolog wraps an existing zerolog logger.
func FromZerolog(zl zerolog.Logger) Logger { return Logger{base: zl, hasBase: true} }

func (l Logger) IsZero() bool { return l.svc == nil && !l.hasBase && len(l.fields) == 0 }

func (l Logger) root() zerolog.Logger {
	switch {
	case l.svc != nil:
		return l.svc.current()
	case l.hasBase:
		return l.base
	}
	return zerolog.Nop()
}

// Enabled reports whether level would be written.
func (l Logger) Enabled(level Level) bool { return level >= l.root().GetLevel() }

// With returns a derived logger that adds fields to every event.
func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	cp := l
	cp.fields = append(append([]Field(nil), l.fields...), fields...)
	return cp
}

func (l Logger) Trace(msg string, fields ...Field) { l.write(LevelTrace, msg, fields) }
func (l Logger) Debug(msg string, fields ...Field) { l.write(LevelDebug, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.write(LevelInfo, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.write(LevelWarn, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.write(LevelError, msg, fields) }

func (l Logger) write(level Level, msg string, fields []Field) {
	zl := l.root()
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	if c := caller(3); c != "" {
		e.Str(zerolog.CallerFieldName, c)
	}
	for _, f := range l.fields {
		if f != nil {
			f(e)
		}
	}
	for _, f := range fields {
		if f != nil {
			f(e)
		}
	}
	e.Msg(msg)
}

// caller returns "file.go:123" for the frame skip levels up.
func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok || file == "" {
		return ""
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

// ParseLevel maps a case-insensitive level name to a Level.
func ParseLevel(s string, def Level) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	}
	return def
}

func setGlobals() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeFormat
}
