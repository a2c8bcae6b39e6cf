package weeb

import (
	"context"
	"io"

	"go.uber.org/zap"
)

type loggerKey struct{}

// WithLogger attaches a logger to ctx.
func WithLogger(ctx context.Context, log *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, log)
}

// Logger gets the logger attached to ctx, or the global logger.
func Logger(ctx context.Context) *zap.SugaredLogger {
	if log, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok && log != nil {
		return log
	}
	return zap.S()
}

// A context-aware io.Reader wrapper.
type readerContext struct {
	ctx context.Context
	r   io.Reader
}

func (r *readerContext) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
