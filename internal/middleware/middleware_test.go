package middleware

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"freesync/internal/logging"
)

func testConn(t *testing.T) *Conn {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return &Conn{Conn: a}
}

func TestChainOrder(t *testing.T) {
	var calls []string
	mark := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, c *Conn) error {
				calls = append(calls, name)
				return next(ctx, c)
			}
		}
	}

	h := Chain(func(context.Context, *Conn) error {
		calls = append(calls, "handler")
		return nil
	}, mark("inner"), mark("outer"))

	require.NoError(t, h(context.Background(), testConn(t)))
	assert.Equal(t, []string{"outer", "inner", "handler"}, calls)
}

func TestLoggerWithConnID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := logging.Wrap(zap.New(core))

	var seen string
	h := Chain(func(ctx context.Context, c *Conn) error {
		seen, _ = logging.ConnIDFrom(ctx)
		c.Lines = 3
		return nil
	}, Logger(logger), ConnID)

	require.NoError(t, h(context.Background(), testConn(t)))
	require.NotEmpty(t, seen)

	entries := logs.FilterMessage("connection completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, seen, fields["conn_id"])
	assert.Equal(t, int64(3), fields["lines"])
}

func TestLoggerReportsFailure(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := logging.Wrap(zap.New(core))

	boom := errors.New("boom")
	h := Chain(func(context.Context, *Conn) error { return boom }, Logger(logger))

	assert.ErrorIs(t, h(context.Background(), testConn(t)), boom)
	assert.Equal(t, 1, logs.FilterMessage("connection failed").Len())
}

func TestRecover(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := logging.Wrap(zap.New(core))

	h := Chain(func(context.Context, *Conn) error {
		panic("bad handler")
	}, Recover(logger))

	err := h(context.Background(), testConn(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad handler")
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}
