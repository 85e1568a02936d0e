package mcpservice

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcpwire/mcpwire/mcp"
	"github.com/mcpwire/mcpwire/sessions"
)

// ErrInvalidLoggingLevel indicates the provided level is not one of the
// protocol-defined LoggingLevel values.
var ErrInvalidLoggingLevel = errors.New("invalid logging level")

// NewSlogLevelVarLogging returns a LoggingCapability that maps MCP logging
// levels onto a slog.LevelVar. Handlers created from the same LevelVar pick
// up the change process-wide.
func NewSlogLevelVarLogging(lv *slog.LevelVar) LoggingCapability {
	return &slogLevelVarLogging{lv: lv}
}

type slogLevelVarLogging struct{ lv *slog.LevelVar }

func (l *slogLevelVarLogging) SetLevel(ctx context.Context, _ sessions.Session, level mcp.LoggingLevel) error {
	if l == nil || l.lv == nil {
		return nil
	}
	if !mcp.IsValidLoggingLevel(level) {
		return ErrInvalidLoggingLevel
	}
	switch level {
	case mcp.LoggingLevelDebug:
		l.lv.Set(slog.LevelDebug)
	case mcp.LoggingLevelInfo, mcp.LoggingLevelNotice:
		l.lv.Set(slog.LevelInfo)
	case mcp.LoggingLevelWarning:
		l.lv.Set(slog.LevelWarn)
	default:
		// error and above collapse onto slog's error level
		l.lv.Set(slog.LevelError)
	}
	return nil
}
