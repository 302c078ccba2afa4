// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocol_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewProtocol(reg)

	m.FrameDiscarded("crc_mismatch", 8)
	m.FrameDiscarded("foreign_address", 1)
	m.FrameDiscarded("foreign_address", 1)
	m.ExchangeCompleted(0x03, 0)
	m.ExchangeCompleted(0x03, 0x02)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesDiscarded.WithLabelValues("crc_mismatch")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.BytesDiscarded.WithLabelValues("crc_mismatch")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesDiscarded.WithLabelValues("foreign_address")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("read_holding_registers")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Exceptions.WithLabelValues("read_holding_registers", "2")))

	expected := `
# HELP rtuslave_exceptions_total Requests answered with an exception.
# TYPE rtuslave_exceptions_total counter
rtuslave_exceptions_total{code="2",function="read_holding_registers"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "rtuslave_exceptions_total"))
}

func TestProtocol_NilIsSafe(t *testing.T) {
	var m *Protocol
	m.FrameDiscarded("other", 1)
	m.ExchangeCompleted(0x06, 0)
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	NewProtocol(reg).ExchangeCompleted(0x06, 0)
	var dropped uint64 = 3
	RegisterNotifierDrops(reg, func() uint64 { return dropped })

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `rtuslave_requests_total{function="write_single_register"} 1`)
	assert.Contains(t, body, "rtuslave_notifications_dropped_total 3")
	assert.Contains(t, body, "go_goroutines")
}
