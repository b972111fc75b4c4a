package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Context field names shared by every binary.
const (
	FieldRequestID    = "request_id"
	FieldUserID       = "user_id"
	FieldComplaintID  = "complaint_id"
	FieldAgentID      = "agent_id"
	FieldConnectionID = "connection_id"
	FieldActorRole    = "actor_role"
)

// Options configures the structured logger.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	// Format is json (default) or console.
	Format    string
	WarnStack bool
	Output    io.Writer
}

// Logger wraps zerolog and carries per-request fields through context.
type Logger struct {
	base      zerolog.Logger
	warnStack bool
}

type ctxKey struct{}

func New(opts Options) *Logger {
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(strings.TrimSpace(opts.Format), FormatConsole) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	return &Logger{
		base: zerolog.New(out).
			Level(level).
			With().
			Timestamp().
			Str("service", opts.ServiceName).
			Logger(),
		warnStack: opts.WarnStack,
	}
}

// ParseLevel maps a config string to a level, falling back to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if entry, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok {
			return entry
		}
	}
	return &l.base
}

func (l *Logger) with(ctx context.Context, build func(zerolog.Context) zerolog.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	entry := build(l.from(ctx).With()).Logger()
	return context.WithValue(ctx, ctxKey{}, &entry)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Interface(key, value)
	})
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Fields(fields)
	})
}

func (l *Logger) withString(ctx context.Context, key, value string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Str(key, value)
	})
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.withString(ctx, FieldRequestID, requestID)
}

func (l *Logger) WithUserID(ctx context.Context, userID string) context.Context {
	return l.withString(ctx, FieldUserID, userID)
}

func (l *Logger) WithComplaintID(ctx context.Context, complaintID string) context.Context {
	return l.withString(ctx, FieldComplaintID, complaintID)
}

func (l *Logger) WithAgentID(ctx context.Context, agentID string) context.Context {
	return l.withString(ctx, FieldAgentID, agentID)
}

func (l *Logger) WithConnectionID(ctx context.Context, connectionID string) context.Context {
	return l.withString(ctx, FieldConnectionID, connectionID)
}

func (l *Logger) WithActorRole(ctx context.Context, role string) context.Context {
	return l.withString(ctx, FieldActorRole, role)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.from(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.from(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	event := l.from(ctx).Warn()
	if l.warnStack {
		event = event.Str("stack", stack())
	}
	event.Msg(msg)
}

// Error always records the stack; err may be nil.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	event := l.from(ctx).Error().Str("stack", stack())
	if err != nil {
		event = event.Err(err)
	}
	event.Msg(msg)
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
