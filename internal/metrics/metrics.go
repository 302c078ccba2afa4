// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ffutop/modbus-rtu-slave/modbus"
)

const namespace = "rtuslave"

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Protocol counts responder events. A nil *Protocol records nothing.
type Protocol struct {
	FramesDiscarded *prometheus.CounterVec // labels: reason
	BytesDiscarded  *prometheus.CounterVec // labels: reason
	Requests        *prometheus.CounterVec // labels: function
	Exceptions      *prometheus.CounterVec // labels: function, code
}

// NewProtocol registers and returns the protocol counters.
func NewProtocol(reg prometheus.Registerer) *Protocol {
	m := &Protocol{
		FramesDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_discarded_total",
			Help:      "Discard events of the frame assembler.",
		}, []string{"reason"}),
		BytesDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_discarded_total",
			Help:      "Bytes dropped by the frame assembler.",
		}, []string{"reason"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Dispatched request frames.",
		}, []string{"function"}),
		Exceptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exceptions_total",
			Help:      "Requests answered with an exception.",
		}, []string{"function", "code"}),
	}
	reg.MustRegister(m.FramesDiscarded, m.BytesDiscarded, m.Requests, m.Exceptions)
	return m
}

func (m *Protocol) FrameDiscarded(reason string, dropped int) {
	if m == nil {
		return
	}
	m.FramesDiscarded.WithLabelValues(reason).Inc()
	m.BytesDiscarded.WithLabelValues(reason).Add(float64(dropped))
}

func (m *Protocol) ExchangeCompleted(functionCode, exceptionCode byte) {
	if m == nil {
		return
	}
	function := modbus.FunctionName(functionCode)
	m.Requests.WithLabelValues(function).Inc()
	if exceptionCode != 0 {
		m.Exceptions.WithLabelValues(function, strconv.Itoa(int(exceptionCode))).Inc()
	}
}

// RegisterNotifierDrops exposes a notification drop counter owned elsewhere.
func RegisterNotifierDrops(reg prometheus.Registerer, dropped func() uint64) {
	reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_dropped_total",
		Help:      "Exchanges not delivered to observers because the queue was full.",
	}, func() float64 { return float64(dropped()) }))
}
