// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/ffutop/modbus-rtu-slave/internal/config"
	"github.com/ffutop/modbus-rtu-slave/transport"
	"github.com/ffutop/modbus-rtu-slave/transport/rtu"
)

const defaultReadTimeout = 500 * time.Millisecond

// Server implements a Modbus RTU over TCP Server.
// It listens on a TCP port and treats each connection as the serial line:
// one connection is served at a time, by a single Responder.
type Server struct {
	Address     string
	ReadTimeout time.Duration
	Responder   *rtu.Responder

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new RTU over TCP Server. A zero read timeout falls
// back to 500ms.
func NewServer(cfg config.TcpConfig, responder *rtu.Responder) *Server {
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	return &Server{
		Address:     cfg.Address,
		ReadTimeout: timeout,
		Responder:   responder,
	}
}

// Start listens and serves connections one after another until ctx is done.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	slog.Info("RTU over TCP server listening", "addr", listener.Addr(), "slave_id", s.Responder.SlaveID)

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("Failed to accept connection", "err", err)
			continue
		}
		s.handleConnection(ctx, conn, handler)
	}
}

// Addr returns the bound address once Start is listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close closes the server listener.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		err := s.listener.Close()
		s.listener = nil
		return err
	}
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, handler transport.RequestHandler) {
	slog.Info("New RTU over TCP client connected", "addr", conn.RemoteAddr())
	port := transport.NewStreamPort(&deadlineConn{Conn: conn, timeout: s.ReadTimeout}, isDeadline)
	defer port.Close()

	if err := s.Responder.Serve(ctx, port, handler); err != nil {
		slog.Info("RTU over TCP client disconnected", "addr", conn.RemoteAddr(), "err", err)
	}
}

// deadlineConn arms a read deadline before every read, giving the
// connection the read timeout semantics of a serial port.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func isDeadline(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}
