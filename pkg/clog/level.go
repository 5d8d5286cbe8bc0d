package clog

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"
)

type Level int

const (
	LevelDebug Level = iota + 1
	LevelInfo
	LevelWarn
	LevelError
)

func HTTPStatusToLevel(status int) Level {
	switch {
	case status >= 100 && status < 400:
		return LevelInfo
	case status == 499:
		return LevelInfo
	case status >= 400 && status < 500:
		return LevelWarn
	default:
		return LevelError
	}
}

// ConnectCodeToLevel decides how loudly a failed RPC is reported. Codes the
// client recovers from on its own (rollback, reconnect) stay at info or warn.
func ConnectCodeToLevel(code connect.Code) Level {
	switch code {
	case connect.CodeCanceled,
		connect.CodeInvalidArgument,
		connect.CodeNotFound,
		connect.CodeAlreadyExists,
		connect.CodePermissionDenied,
		connect.CodeFailedPrecondition,
		connect.CodeAborted,
		connect.CodeOutOfRange,
		connect.CodeUnauthenticated:
		return LevelInfo
	case connect.CodeDeadlineExceeded, connect.CodeUnavailable:
		return LevelWarn
	case connect.CodeUnknown,
		connect.CodeResourceExhausted,
		connect.CodeUnimplemented,
		connect.CodeInternal,
		connect.CodeDataLoss:
		return LevelError
	}
	return LevelError
}

func logAt(ctx context.Context, level Level, msg string) {
	switch level {
	case LevelError:
		slog.ErrorContext(ctx, msg)
	case LevelWarn:
		slog.WarnContext(ctx, msg)
	case LevelInfo:
		slog.InfoContext(ctx, msg)
	case LevelDebug:
		slog.DebugContext(ctx, msg)
	}
}
