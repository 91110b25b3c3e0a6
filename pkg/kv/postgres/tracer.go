package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
)

// newTracer bridges pgx statement tracing into logger at level.
func newTracer(logger *zap.SugaredLogger, level string) (*tracelog.TraceLog, error) {
	lvl, err := tracelog.LogLevelFromString(level)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres log level %q: %w", level, err)
	}

	return &tracelog.TraceLog{
		Logger: tracelog.LoggerFunc(func(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
			fields := make([]interface{}, 0, len(data)*2)
			for k, v := range data {
				fields = append(fields, k, v)
			}

			switch level {
			case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
				logger.Debugw(msg, fields...)
			case tracelog.LogLevelInfo:
				logger.Infow(msg, fields...)
			case tracelog.LogLevelWarn:
				logger.Warnw(msg, fields...)
			default:
				logger.Errorw(msg, fields...)
			}
		}),
		LogLevel: lvl,
	}, nil
}
