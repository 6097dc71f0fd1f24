package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	scerrors "github.com/YuminosukeSato/replenish/pkg/errors"
)

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// zeroLogger implements Logger on top of zerolog.
type zeroLogger struct {
	zl     zerolog.Logger
	fields []any
}

// New returns a JSON Logger writing to w at the given minimum level.
func New(w io.Writer, level Level) Logger {
	zl := zerolog.New(w).Level(toZerologLevel(level)).With().Timestamp().Logger()
	return &zeroLogger{zl: zl}
}

func (l *zeroLogger) Debug(msg string, fields ...any) { l.emit(l.zl.Debug(), msg, fields) }
func (l *zeroLogger) Info(msg string, fields ...any)  { l.emit(l.zl.Info(), msg, fields) }
func (l *zeroLogger) Warn(msg string, fields ...any)  { l.emit(l.zl.Warn(), msg, fields) }
func (l *zeroLogger) Error(msg string, fields ...any) { l.emit(l.zl.Error(), msg, fields) }

func (l *zeroLogger) With(fields ...any) Logger {
	merged := make([]any, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &zeroLogger{zl: l.zl, fields: merged}
}

func (l *zeroLogger) Enabled(_ context.Context, level Level) bool {
	zlevel := toZerologLevel(level)
	return zlevel >= l.zl.GetLevel() && zlevel >= zerolog.GlobalLevel()
}

func (l *zeroLogger) emit(e *zerolog.Event, msg string, fields []any) {
	if e == nil {
		return
	}
	appendFields(e, l.fields)
	appendFields(e, fields)
	e.Msg(msg)
}

// appendFields writes slog-style key/value pairs. A bare error is logged
// under ErrAttrKey; a dangling key or non-string key is kept under !BADKEY.
func appendFields(e *zerolog.Event, fields []any) {
	for i := 0; i < len(fields); i++ {
		switch v := fields[i].(type) {
		case error:
			appendError(e, ErrAttrKey, v)
		case string:
			if i+1 >= len(fields) {
				e.Str("!BADKEY", v)
				continue
			}
			appendValue(e, v, fields[i+1])
			i++
		default:
			e.Interface("!BADKEY", v)
		}
	}
}

func appendValue(e *zerolog.Event, key string, value any) {
	switch v := value.(type) {
	case error:
		appendError(e, key, v)
	case string:
		e.Str(key, v)
	case int:
		e.Int(key, v)
	case int64:
		e.Int64(key, v)
	case float64:
		e.Float64(key, v)
	case bool:
		e.Bool(key, v)
	case time.Time:
		e.Time(key, v)
	case time.Duration:
		e.Dur(key, v)
	case fmt.Stringer:
		e.Stringer(key, v)
	default:
		e.Interface(key, v)
	}
}

func appendError(e *zerolog.Event, key string, err error) {
	if err == nil {
		return
	}
	e.Str(key, err.Error())
	var m zerolog.LogObjectMarshaler
	if errors.As(err, &m) {
		e.Object(key+"_detail", m)
	}
	if st := extractStacktrace(err); st != "" {
		e.Str(StacktraceAttrKey, st)
	}
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}

// ParseLevel converts "debug", "info", "warn" or "error" to a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.Newf("invalid log level: %q", level)
	}
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger = New(os.Stderr, LevelInfo)
)

// SetupLogger builds a Provider from a level string, installs its logger
// as the global logger and routes pkg/errors warnings through it.
func SetupLogger(level string, w io.Writer) (*Provider, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	p := NewProvider(w, lvl)
	SetGlobal(p.GetLogger())
	return p, nil
}

// SetGlobal replaces the global logger.
func SetGlobal(logger Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()

	warnLogger := logger.With(ComponentKey, "warnings")
	scerrors.SetZerologWarnFunc(func(w error) {
		warnLogger.Warn("warning", ErrAttrKey, w)
	})
}

// GetLogger returns the global logger.
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// GetLoggerWithName returns the global logger tagged with a component name.
func GetLoggerWithName(name string) Logger {
	return GetLogger().With(ComponentKey, name)
}

// Provider is a LoggerProvider over a single writer.
type Provider struct {
	mu    sync.Mutex
	w     io.Writer
	level Level
}

var _ LoggerProvider = (*Provider)(nil)

// NewProvider returns a Provider writing to w.
func NewProvider(w io.Writer, level Level) *Provider {
	return &Provider{w: w, level: level}
}

// GetLogger returns a logger at the provider's current level.
func (p *Provider) GetLogger() Logger {
	p.mu.Lock()
	defer p.mu.Unlock()
	return New(p.w, p.level)
}

func (p *Provider) GetLoggerWithName(name string) Logger {
	return p.GetLogger().With(ComponentKey, name)
}

// SetLevel changes the level of loggers created afterwards.
func (p *Provider) SetLevel(level Level) {
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
}
