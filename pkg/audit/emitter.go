package audit

import (
	"context"
	"errors"
	"log/slog"
)

// EventEmitter accepts audit events.
type EventEmitter interface {
	Emit(Event) error
}

// NopEmitter discards all events.
type NopEmitter struct{}

// Emit discards the event.
func (NopEmitter) Emit(Event) error { return nil }

// SlogEmitter writes events as structured log records.
type SlogEmitter struct {
	logger *slog.Logger
}

// NewSlogEmitter returns an emitter logging through logger, or slog.Default()
// when logger is nil.
func NewSlogEmitter(logger *slog.Logger) *SlogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogEmitter{logger: logger}
}

// Emit logs ev at a level derived from its severity.
func (e *SlogEmitter) Emit(ev Event) error {
	attrs := make([]slog.Attr, 0, len(ev.Details)+3)
	attrs = append(attrs, slog.String("event", string(ev.Type)))
	if ev.ActorID != "" {
		attrs = append(attrs, slog.String("actor_id", ev.ActorID))
	}
	if ev.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", ev.RequestID))
	}
	for k, v := range ev.Details {
		attrs = append(attrs, slog.String(k, v))
	}
	e.logger.LogAttrs(context.Background(), levelFor(ev.Severity), "audit", attrs...)
	return nil
}

func levelFor(s Severity) slog.Level {
	switch {
	case s <= SeverityError:
		return slog.LevelError
	case s == SeverityWarning:
		return slog.LevelWarn
	case s == SeverityDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// MultiEmitter fans an event out to every backend. A failing backend does
// not stop delivery to the rest; all errors are joined.
type MultiEmitter []EventEmitter

// Emit delivers ev to every backend.
func (m MultiEmitter) Emit(ev Event) error {
	var errs []error
	for _, b := range m {
		if b == nil {
			continue
		}
		if err := b.Emit(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Safe emits ev and logs, rather than returns, any backend error. Audit
// failures never block the operation being audited.
func Safe(e EventEmitter, logger *slog.Logger, ev Event) {
	if e == nil {
		return
	}
	if err := e.Emit(ev); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("audit emit failed", "event", string(ev.Type), "error", err)
	}
}
