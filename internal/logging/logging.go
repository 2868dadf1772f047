// Package logging turns batch events into zerolog lines.
package logging

import (
	"context"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hanpama/odatabatch/internal/batch"
	eventbus "github.com/hanpama/odatabatch/internal/eventbus"
	events "github.com/hanpama/odatabatch/internal/events"
	reqid "github.com/hanpama/odatabatch/internal/reqid"
)

// Field names used by the process logger. Log collectors key on severity,
// not level.
const (
	LevelFieldName   = "severity"
	MessageFieldName = "log"
	TimeFieldFormat  = "2006-01-02T15:04:05.999Z"
)

// ParseLevel maps debug, info, warn and error onto zerolog levels. Anything
// else is info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Configure sets the global zerolog field names.
func Configure() {
	zerolog.LevelFieldName = LevelFieldName
	zerolog.MessageFieldName = MessageFieldName
	zerolog.TimeFieldFormat = TimeFieldFormat
}

// New returns a logger writing to w at the given level. With pretty set,
// lines are rendered by zerolog.ConsoleWriter.
func New(w io.Writer, level string, pretty bool) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true}
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// Register subscribes logger to the global event bus.
func Register(logger zerolog.Logger) (unsubscribe func()) {
	l := &subscriber{logger: logger}
	return l.register()
}

type subscriber struct {
	logger zerolog.Logger
}

func (l *subscriber) with(ctx context.Context) *zerolog.Logger {
	lg := l.logger
	if rid, ok := reqid.FromContext(ctx); ok {
		lg = lg.With().Int64("request_id", rid).Logger()
	}
	return &lg
}

func (l *subscriber) register() func() {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			lvl := zerolog.InfoLevel
			if e.Status >= 500 {
				lvl = zerolog.ErrorLevel
			}
			l.with(ctx).WithLevel(lvl).
				Str("method", e.Request.Method).
				Str("path", e.Request.URL.Path).
				Int("status", e.Status).
				Int("bytes", e.Bytes).
				Dur("duration", e.Duration).
				Msg("http request")
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.BatchFinish) {
			l.with(ctx).Info().
				Int("operations", e.Operations).
				Int("failed_changesets", e.FailedChangeSets).
				Dur("duration", e.Duration).
				Msg("batch finished")
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.ChangeSetFinish) {
			lvl := zerolog.InfoLevel
			if e.State == batch.Failed {
				lvl = zerolog.WarnLevel
			}
			l.with(ctx).WithLevel(lvl).
				Err(e.Err).
				Int("operation", e.Operation).
				Int("size", e.Size).
				Int("dispatched", e.Dispatched).
				Str("state", e.State.String()).
				Dur("duration", e.Duration).
				Msg("changeset finished")
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.DispatchFinish) {
			lvl := zerolog.InfoLevel
			if e.Err != nil {
				lvl = zerolog.ErrorLevel
			}
			l.with(ctx).WithLevel(lvl).
				Err(e.Err).
				Int("operation", e.Operation).
				Int("member", e.Member).
				Str("method", e.Method).
				Str("path", e.Path).
				Str("content_id", e.ContentID).
				Int("status", e.Status).
				Dur("duration", e.Duration).
				Msg("dispatched")
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientFinish) {
			lvl := zerolog.DebugLevel
			if e.Err != nil {
				lvl = zerolog.ErrorLevel
			}
			l.with(ctx).WithLevel(lvl).
				Err(e.Err).
				Str("route", e.Route).
				Str("method", e.Method).
				Str("target", e.Target).
				Str("code", e.Code.String()).
				Dur("duration", e.Duration).
				Msg("grpc call")
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
