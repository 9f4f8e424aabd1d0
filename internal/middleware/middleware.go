// Package middleware wraps per-connection handlers of the sync server.
package middleware

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"freesync/internal/logging"
)

// Conn is an accepted connection plus the state handlers report back.
type Conn struct {
	net.Conn
	Lines int
}

type Handler func(ctx context.Context, c *Conn) error

type Middleware func(Handler) Handler

// Chain wraps h so that the last middleware runs first.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for _, m := range middlewares {
		h = m(h)
	}
	return h
}

func ConnID(next Handler) Handler {
	return func(ctx context.Context, c *Conn) error {
		ctx = logging.ContextWithConnID(ctx, uuid.New().String())
		return next(ctx, c)
	}
}

func Logger(logger *logging.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, c *Conn) error {
			start := time.Now()
			log := logger.WithConnID(ctx)
			log.Debug("connection accepted", zap.Stringer("remote", c.RemoteAddr()))

			err := next(ctx, c)

			fields := []zap.Field{
				zap.Stringer("remote", c.RemoteAddr()),
				zap.Int("lines", c.Lines),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				log.Warn("connection failed", append(fields, zap.Error(err))...)
			} else {
				log.Info("connection completed", fields...)
			}
			return err
		}
	}
}

func Recover(logger *logging.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, c *Conn) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.WithConnID(ctx).Error("panic recovered",
						zap.Any("error", r),
					)
					err = fmt.Errorf("handler panic: %v", r)
				}
			}()
			return next(ctx, c)
		}
	}
}
