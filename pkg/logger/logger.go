// Package logger provides component-scoped structured logging for dlrelay.
//
// Every entry carries a "component" attribute so that relay, gateway and
// channel output can be filtered independently.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var (
	level   = new(slog.LevelVar)
	current atomic.Pointer[slog.Logger]
)

func init() {
	level.Set(slog.LevelInfo)
	SetOutput(os.Stderr)
}

// SetLevel changes the minimum level written by every component.
func SetLevel(l LogLevel) {
	level.Set(toSlog(l))
}

// GetLevel returns the current minimum level.
func GetLevel() LogLevel {
	switch l := level.Level(); {
	case l <= slog.LevelDebug:
		return DEBUG
	case l <= slog.LevelInfo:
		return INFO
	case l <= slog.LevelWarn:
		return WARN
	default:
		return ERROR
	}
}

// SetOutput redirects log output to w using the JSON handler.
func SetOutput(w io.Writer) {
	current.Store(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

func toSlog(l LogLevel) slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func logC(l LogLevel, component, message string, fields map[string]any) {
	lg := current.Load()
	sl := toSlog(l)
	if !lg.Enabled(context.Background(), sl) {
		return
	}

	attrs := make([]slog.Attr, 0, len(fields)+1)
	attrs = append(attrs, slog.String("component", component))

	// map iteration order is random; keep output stable for grepping
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}

	lg.LogAttrs(context.Background(), sl, message, attrs...)
}

func DebugC(component, message string) { logC(DEBUG, component, message, nil) }

func DebugCF(component, message string, fields map[string]any) {
	logC(DEBUG, component, message, fields)
}

func InfoC(component, message string) { logC(INFO, component, message, nil) }

func InfoCF(component, message string, fields map[string]any) {
	logC(INFO, component, message, fields)
}

func WarnC(component, message string) { logC(WARN, component, message, nil) }

func WarnCF(component, message string, fields map[string]any) {
	logC(WARN, component, message, fields)
}

func ErrorC(component, message string) { logC(ERROR, component, message, nil) }

func ErrorCF(component, message string, fields map[string]any) {
	logC(ERROR, component, message, fields)
}
