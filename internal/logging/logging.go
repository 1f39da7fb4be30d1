// Package logging builds the zerolog logger shared by every component.
//
// Console output is short and human-readable; json output keeps every
// field structured for log shippers. Components derive a child logger
// with a "component" field via Component.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nhle/ghwatch/internal/model"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Standard field names.
const (
	FieldComponent      = "component"
	FieldRunID          = "run_id"
	FieldPhase          = "phase"
	FieldKind           = "kind"
	FieldRef            = "ref"
	FieldRepo           = "repo"
	FieldNotificationID = "notification_id"
	FieldAttempt        = "attempt"
)

// New builds a logger writing to stderr according to cfg.
func New(cfg model.LoggingConfig) zerolog.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter builds a logger writing to w according to cfg.
func NewWithWriter(cfg model.LoggingConfig, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = consoleTimeFormat
	zerolog.ErrorFieldName = "err"

	out := w
	if !strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	}
	return zerolog.New(out).
		Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
}

// ParseLevel converts a level name into a zerolog level, returning def for
// empty or unknown names.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "off", "disabled":
		return zerolog.Disabled
	}
	return def
}

// Component returns a child of l tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str(FieldComponent, name).Logger()
}
