// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ffutop/modbus-rtu-slave/modbus"
	"github.com/ffutop/modbus-rtu-slave/transport"
)

// DefaultQueueSize is the number of exchanges buffered for delivery.
const DefaultQueueSize = 64

// Observer is called with every request of the function code it was
// registered for, after the response went out.
type Observer func(Request)

// Notifier fans completed exchanges out to per-function observers on its
// own goroutine, so a slow observer never delays the protocol worker.
type Notifier struct {
	observers *xsync.MapOf[byte, Observer]
	queue     chan transport.Exchange
	dropped   atomic.Uint64
}

// NewNotifier creates a Notifier buffering up to queueSize exchanges.
func NewNotifier(queueSize int) *Notifier {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Notifier{
		observers: xsync.NewMapOf[byte, Observer](),
		queue:     make(chan transport.Exchange, queueSize),
	}
}

// On registers o for functionCode, replacing any previous observer.
func (n *Notifier) On(functionCode byte, o Observer) {
	n.observers.Store(functionCode, o)
}

// Off removes the observer for functionCode.
func (n *Notifier) Off(functionCode byte) {
	n.observers.Delete(functionCode)
}

// Notify queues ex for delivery. It never blocks: when the queue is full
// the exchange is dropped and counted. It matches transport.ExchangeObserver.
func (n *Notifier) Notify(ex transport.Exchange) {
	select {
	case n.queue <- ex:
	default:
		n.dropped.Add(1)
	}
}

// Dropped returns the number of exchanges lost to a full queue.
func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}

// Run delivers queued exchanges until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ex := <-n.queue:
			n.deliver(ex)
		}
	}
}

func (n *Notifier) deliver(ex transport.Exchange) {
	// The observer is keyed by the request code, exceptions included.
	o, ok := n.observers.Load(ex.Request.FunctionCode)
	if !ok {
		return
	}
	req, err := ParseRequest(ex)
	if err != nil {
		slog.Debug("Skipping notification", "err", err)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Observer panicked", "function", modbus.FunctionName(req.FunctionCode), "panic", r)
		}
	}()
	o(req)
}
