// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ffutop/modbus-rtu-slave/internal/config"
	"github.com/ffutop/modbus-rtu-slave/modbus"
	rtupacket "github.com/ffutop/modbus-rtu-slave/modbus/rtu"
	"github.com/ffutop/modbus-rtu-slave/transport"
)

// Metrics receives protocol events from the Responder.
type Metrics interface {
	FrameDiscarded(reason string, dropped int)
	// ExchangeCompleted is called once per dispatched frame; exceptionCode
	// is 0 for a successful response.
	ExchangeCompleted(functionCode, exceptionCode byte)
}

// Responder is the protocol worker: it owns the read loop of one port,
// assembles frames, runs the handler and writes the responses. It is the
// only writer to the port it serves.
type Responder struct {
	SlaveID   byte
	Broadcast bool
	// IdleReset abandons a partial frame when a read times out.
	IdleReset bool
	// Accept limits the function codes assembled; nil accepts 0x03, 0x06
	// and 0x10.
	Accept     func(code byte) bool
	OnExchange transport.ExchangeObserver
	Metrics    Metrics
}

// Serve reads port until ctx is done or the port fails. Cancellation is
// checked once per byte or read timeout, never in the middle of a write.
func (r *Responder) Serve(ctx context.Context, port transport.Port, handler transport.RequestHandler) error {
	opts := []rtupacket.AssemblerOption{rtupacket.WithBroadcast(r.Broadcast)}
	if r.Accept != nil {
		opts = append(opts, rtupacket.WithAcceptFunc(r.Accept))
	}
	assembler := rtupacket.NewAssembler(r.SlaveID, opts...)
	// Discards are line noise; keep the log quiet in steady state.
	discardLog := &rate.Sometimes{First: 10, Interval: 10 * time.Second}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		b, err := port.ReadByte()
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				if r.IdleReset {
					if err := assembler.Abort(); err != nil {
						r.discarded(discardLog, err)
					}
				}
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("rtu: read failed: %w", err)
		}

		frame, err := assembler.Feed(b)
		if err != nil {
			r.discarded(discardLog, err)
		}
		if frame == nil {
			continue
		}
		if err := r.respond(ctx, port, frame, handler); err != nil {
			return err
		}
	}
}

func (r *Responder) respond(ctx context.Context, port transport.Port, frame []byte, handler transport.RequestHandler) error {
	adu, err := rtupacket.Decode(frame)
	if err != nil {
		// The assembler already checked length and CRC.
		slog.Error("Assembled frame failed to decode", "frame", fmt.Sprintf("% X", frame), "err", err)
		return nil
	}
	slog.Debug("Received request", "frame", fmt.Sprintf("% X", frame))
	broadcast := adu.SlaveID == rtupacket.BroadcastAddress

	respPdu, err := handler(ctx, adu.SlaveID, adu.Pdu)
	if err != nil {
		slog.Error("Handler failed", "slave_id", adu.SlaveID, "function", modbus.FunctionName(adu.Pdu.FunctionCode), "err", err)
		respPdu = modbus.NewException(adu.Pdu.FunctionCode, modbus.ExceptionCodeServerDeviceFailure)
	}

	exceptionCode := respPdu.ExceptionCode()
	if r.Metrics != nil {
		r.Metrics.ExchangeCompleted(adu.Pdu.FunctionCode, exceptionCode)
	}
	if respPdu.IsException() {
		slog.Info("Answering with exception",
			"slave_id", adu.SlaveID,
			"function", modbus.FunctionName(adu.Pdu.FunctionCode),
			"exception", modbus.ExceptionName(exceptionCode),
			"broadcast", broadcast)
	}

	if !broadcast {
		respAdu := &rtupacket.ApplicationDataUnit{SlaveID: adu.SlaveID, Pdu: respPdu}
		respRaw, err := respAdu.Encode()
		if err != nil {
			slog.Error("Failed to encode response", "err", err)
			return nil
		}
		slog.Debug("Sending response", "frame", fmt.Sprintf("% X", respRaw))
		if _, err := port.Write(respRaw); err != nil {
			return fmt.Errorf("rtu: write failed: %w", err)
		}
	}

	if r.OnExchange != nil {
		r.OnExchange(transport.Exchange{
			SlaveID:   adu.SlaveID,
			Request:   adu.Pdu,
			Response:  respPdu,
			Broadcast: broadcast,
		})
	}
	return nil
}

func (r *Responder) discarded(sometimes *rate.Sometimes, err error) {
	var fe *rtupacket.FramingError
	dropped := 0
	if errors.As(err, &fe) {
		dropped = fe.Dropped
	}
	reason := rtupacket.ReasonLabel(err)
	if r.Metrics != nil {
		r.Metrics.FrameDiscarded(reason, dropped)
	}
	sometimes.Do(func() {
		slog.Debug("Discarded bytes", "reason", reason, "dropped", dropped)
	})
}

// Server implements a Modbus RTU Server (Upstream).
// It acts as a Slave on the serial bus, waiting for requests from an external Master.
type Server struct {
	Config    config.SerialConfig
	Responder *Responder

	mu   sync.Mutex
	port transport.Port
}

// NewServer creates a new RTU Server.
func NewServer(cfg config.SerialConfig, responder *Responder) *Server {
	return &Server{
		Config:    cfg,
		Responder: responder,
	}
}

// Start opens the serial port and serves it until ctx is done.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	port, err := OpenSerial(s.Config)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
	defer s.Close()

	slog.Info("RTU Server listening", "device", s.Config.Device, "slave_id", s.Responder.SlaveID, "baud_rate", s.Config.BaudRate)
	return s.Responder.Serve(ctx, port, handler)
}

// Close closes the serial port if it is open.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.port != nil {
		err = s.port.Close()
		s.port = nil
	}
	return err
}
