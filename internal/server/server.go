// Package server runs the TCP sync server: it snapshots the working
// directory on startup and serves line-oriented requests from a fixed pool
// of workers.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"freesync/internal/logging"
	"freesync/internal/merkle"
	"freesync/internal/middleware"
	"freesync/internal/store"
)

const (
	DefaultWorkers = 4
	// DefaultMaxLineSize bounds a single request line, newline included.
	DefaultMaxLineSize = 1 << 20

	readTimeout  = time.Minute
	drainTimeout = time.Second
)

var ErrServerClosed = errors.New("server closed")

type Options struct {
	Addr        string
	Workers     int
	MaxLineSize int
}

type Server struct {
	opts    Options
	store   *store.Store
	logger  *logging.Logger
	handler middleware.Handler

	mu       sync.Mutex
	listener net.Listener
	snapshot *merkle.Tree
	conns    map[net.Conn]struct{}
	serving  bool
	closed   bool
	done     chan struct{}
}

func New(st *store.Store, logger *logging.Logger, opts Options) *Server {
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	if opts.MaxLineSize < 1 {
		opts.MaxLineSize = DefaultMaxLineSize
	}
	s := &Server{
		opts:   opts,
		store:  st,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
		done:   make(chan struct{}),
	}
	s.handler = middleware.Chain(
		s.serveConn,
		middleware.Recover(logger),
		middleware.Logger(logger),
		middleware.ConnID,
	)
	return s
}

// Start snapshots the store root, saves it and opens the listener.
func (s *Server) Start() error {
	tree, err := merkle.Build(s.store.Root())
	if err != nil {
		return fmt.Errorf("building snapshot: %w", err)
	}
	if err := s.store.SaveTree(tree); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	branch, root, err := s.store.Head()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.opts.Addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.snapshot = tree
	s.mu.Unlock()

	s.logger.Info("snapshot saved",
		zap.String("root", s.store.Root()),
		zap.String("branch", branch),
		zap.String("hash", root.String()),
		zap.Int("files", merkle.CountLeaves(tree)),
	)
	s.logger.Info("starting server",
		zap.String("address", ln.Addr().String()),
		zap.Int("workers", s.opts.Workers),
	)
	return nil
}

// Addr is the bound listener address; nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Snapshot returns a copy of the tree saved at startup.
func (s *Server) Snapshot() *merkle.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return nil
	}
	return s.snapshot.Clone()
}

// Serve accepts connections until Shutdown is called or ctx is done. It
// returns ErrServerClosed after a clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	if ln == nil || s.serving {
		s.mu.Unlock()
		return errors.New("server not started or already serving")
	}
	s.serving = true
	s.mu.Unlock()
	defer close(s.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		s.closeListener()
	}()

	p := pool.New().WithMaxGoroutines(s.opts.Workers)
	defer p.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() || ctx.Err() != nil {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accepting connection: %w", err)
		}

		s.track(conn, true)
		p.Go(func() {
			defer s.track(conn, false)
			defer conn.Close()
			_ = s.handler(ctx, &middleware.Conn{Conn: conn})
		})
	}
}

// Shutdown stops accepting connections and waits for in-flight ones. When
// ctx expires first, remaining connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeListener()
	s.mu.Lock()
	serving := s.serving
	s.mu.Unlock()
	if !serving {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		<-s.done
		return ctx.Err()
	}
}

func (s *Server) closeListener() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// serveConn reads request lines until EOF or a blank line, logs each one
// and acknowledges the request with "ok <count>". A line longer than
// MaxLineSize is answered with "error line too long" and ends the request.
func (s *Server) serveConn(ctx context.Context, c *middleware.Conn) error {
	log := s.logger.WithConnID(ctx)
	if err := c.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return err
	}

	scanner := bufio.NewScanner(c)
	scanner.Buffer(make([]byte, 0, min(4096, s.opts.MaxLineSize)), s.opts.MaxLineSize)
	terminated := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			terminated = true
			break
		}
		c.Lines++
		log.Info("request line", zap.Int("n", c.Lines), zap.String("line", line))
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			log.Warn("request line too long",
				zap.Int("n", c.Lines+1),
				zap.Int("max", s.opts.MaxLineSize),
			)
			return s.reject(c, "line too long")
		}
		return fmt.Errorf("reading request: %w", err)
	}

	if terminated {
		if _, err := c.Write([]byte("ok " + strconv.Itoa(c.Lines) + "\n")); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}
	return nil
}

// reject answers with an error line and discards what the client is still
// sending, so closing the connection does not reset it before the reply is
// read.
func (s *Server) reject(c *middleware.Conn, reason string) error {
	if _, err := c.Write([]byte("error " + reason + "\n")); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	if err := c.SetReadDeadline(time.Now().Add(drainTimeout)); err == nil {
		_, _ = io.Copy(io.Discard, c)
	}
	return fmt.Errorf("request rejected: %s", reason)
}
