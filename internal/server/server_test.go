package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"freesync/client"
	"freesync/internal/logging"
	"freesync/internal/merkle"
	"freesync/internal/store"
)

func startServer(t *testing.T, workers int) (*Server, *observer.ObservedLogs, string) {
	t.Helper()
	return startServerWith(t, Options{Addr: "127.0.0.1:0", Workers: workers})
}

func startServerWith(t *testing.T, opts Options) (*Server, *observer.ObservedLogs, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "a.txt"), []byte("a"), 0644))

	st, err := store.New(dir)
	require.NoError(t, err)

	core, logs := observer.New(zap.DebugLevel)
	srv := New(st, logging.Wrap(zap.New(core)), opts)
	require.NoError(t, srv.Start())

	served := make(chan error, 1)
	go func() { served <- srv.Serve(context.Background()) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, srv.Shutdown(ctx))
		assert.ErrorIs(t, <-served, ErrServerClosed)
	})
	return srv, logs, dir
}

func TestStartSavesSnapshot(t *testing.T) {
	srv, logs, dir := startServer(t, 2)

	snap := srv.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 2, merkle.CountLeaves(snap))

	st, err := store.New(dir)
	require.NoError(t, err)
	branch, head, err := st.Head()
	require.NoError(t, err)
	assert.Equal(t, store.DefaultBranch, branch)
	assert.Equal(t, snap.Hash(), head)

	saved := logs.FilterMessage("snapshot saved").All()
	require.Len(t, saved, 1)
	assert.Equal(t, head.String(), saved[0].ContextMap()["hash"])
	assert.Equal(t, 1, logs.FilterMessage("starting server").Len())
}

func TestSnapshotIsACopy(t *testing.T) {
	srv, _, dir := startServer(t, 1)
	before := srv.Snapshot().Hash()

	snap := srv.Snapshot()
	require.NoError(t, snap.ApplyDiff([]merkle.Diff{
		{Kind: merkle.Deleted, Path: filepath.Join(dir, "hello.txt")},
	}))
	assert.NotEqual(t, before, snap.Hash())
	assert.Equal(t, before, srv.Snapshot().Hash())
}

func TestServeLogsRequestLines(t *testing.T) {
	srv, logs, _ := startServer(t, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := client.New(srv.Addr().String()).Send(ctx, []string{"hello", "world"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lines := logs.FilterMessage("request line").All()
	require.Len(t, lines, 2)
	assert.Equal(t, "hello", lines[0].ContextMap()["line"])
	assert.Equal(t, "world", lines[1].ContextMap()["line"])
	assert.NotEmpty(t, lines[0].ContextMap()["conn_id"])
}

func TestServeManyClients(t *testing.T) {
	srv, logs, _ := startServer(t, 2)
	addr := srv.Addr().String()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := client.New(addr).Send(ctx, []string{"ping"})
			errs <- err
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, 8, logs.FilterMessage("request line").Len())
}

func TestServeClosedWithoutBlankLine(t *testing.T) {
	srv, logs, _ := startServer(t, 1)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	_, err = conn.Write([]byte("only line"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return logs.FilterMessage("connection completed").Len() == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, logs.FilterMessage("request line").Len())
}

func TestServeRejectsLongLine(t *testing.T) {
	srv, logs, _ := startServerWith(t, Options{Addr: "127.0.0.1:0", Workers: 1, MaxLineSize: 16})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.New(srv.Addr().String()).Send(ctx, []string{"short", strings.Repeat("x", 64)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line too long")

	assert.Equal(t, 1, logs.FilterMessage("request line too long").Len())
	require.Eventually(t, func() bool {
		return logs.FilterMessage("connection failed").Len() == 1
	}, 5*time.Second, 10*time.Millisecond)

	// The server keeps serving after a rejected request.
	n, err := client.New(srv.Addr().String()).Send(ctx, []string{"fine"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestShutdownWithoutServe(t *testing.T) {
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	srv := New(st, logging.Wrap(zap.NewNop()), Options{Addr: "127.0.0.1:0"})
	require.NoError(t, srv.Start())
	require.NoError(t, srv.Shutdown(context.Background()))
	assert.Error(t, srv.Serve(context.Background()))
}
