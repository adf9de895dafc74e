package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/reglet-dev/finguard/host"
)

// Handler processes one browser event.
type Handler func(ctx context.Context, evt host.Event) error

// Middleware is a function that wraps a Handler to add cross-cutting behavior.
// Middleware executes in FIFO order (first registered wraps first, onion model).
//
// Example usage:
//
//	timing := func(next Handler) Handler {
//	    return func(ctx context.Context, evt host.Event) error {
//	        start := time.Now()
//	        defer func() { log.Printf("%s took %s", evt.Kind, time.Since(start)) }()
//	        return next(ctx, evt)
//	    }
//	}
type Middleware func(next Handler) Handler

// Chain wraps h so that mws[0] is the outermost layer.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// PanicError is returned in place of a panic raised by a handler.
type PanicError struct {
	Kind  host.EventKind
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic while handling %s: %v", e.Kind, e.Value)
}

// PanicRecoveryMiddleware returns a middleware that catches panics and
// converts them to a *PanicError, so one bad event never stops the loop.
func PanicRecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, evt host.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{Kind: evt.Kind, Value: r, Stack: debug.Stack()}
				}
			}()
			return next(ctx, evt)
		}
	}
}

// LoggingMiddleware returns a middleware that logs each event and any
// error its handler returns. Handler errors are reported here and
// nowhere else.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, evt host.Event) error {
			start := time.Now()
			logger.Debug("handling event", "kind", evt.Kind, "tab", evt.TabID)
			err := next(ctx, evt)
			if err != nil {
				logger.Error("event handler failed",
					"kind", evt.Kind,
					"duration", time.Since(start),
					"error", err)
			}
			return err
		}
	}
}
