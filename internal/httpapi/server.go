// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package httpapi is the admin endpoint: health, metrics and direct access
// to the holding register table.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ffutop/modbus-rtu-slave/internal/slave/model"
)

// Server wraps the gin engine and its http.Server.
type Server struct {
	srv *http.Server
}

// New builds the routes. metricsHandler may be nil.
func New(addr string, regs *model.Registers, metricsHandler http.Handler) *Server {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	h := &registerHandler{regs: regs}
	r.GET("/registers", h.read)
	r.PUT("/registers/:address", h.write)
	r.GET("/registers/:address/float", h.readFloat)
	r.PUT("/registers/:address/float", h.writeFloat)

	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until Shutdown is called. It blocks.
func (s *Server) Start() error {
	slog.Info("Admin HTTP listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		slog.Debug("http_request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

type registerHandler struct {
	regs *model.Registers
}

type writeRequest struct {
	Value  *uint16  `json:"value"`
	Values []uint16 `json:"values"`
}

type floatRequest struct {
	Value *float32 `json:"value" binding:"required"`
}

func (h *registerHandler) read(c *gin.Context) {
	address, ok := parseAddress(c, c.DefaultQuery("address", "0"))
	if !ok {
		return
	}
	count, err := strconv.Atoi(c.DefaultQuery("count", "1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid count"})
		return
	}
	values, err := h.regs.Read(address, count)
	if err != nil {
		rangeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address, "values": values})
}

func (h *registerHandler) write(c *gin.Context) {
	address, ok := parseAddress(c, c.Param("address"))
	if !ok {
		return
	}
	var req writeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var err error
	switch {
	case req.Value != nil && req.Values == nil:
		err = h.regs.WriteOne(address, *req.Value)
	case req.Value == nil && len(req.Values) > 0:
		err = h.regs.WriteMany(address, req.Values)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "need exactly one of value, values"})
		return
	}
	if err != nil {
		rangeFailure(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *registerHandler) readFloat(c *gin.Context) {
	address, ok := parseAddress(c, c.Param("address"))
	if !ok {
		return
	}
	v, err := h.regs.ReadFloat32(address)
	if err != nil {
		rangeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address, "value": v})
}

func (h *registerHandler) writeFloat(c *gin.Context) {
	address, ok := parseAddress(c, c.Param("address"))
	if !ok {
		return
	}
	var req floatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.regs.WriteFloat32(address, *req.Value); err != nil {
		rangeFailure(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseAddress(c *gin.Context, raw string) (uint16, bool) {
	v, err := strconv.ParseUint(raw, 0, 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return 0, false
	}
	return uint16(v), true
}

func rangeFailure(c *gin.Context, err error) {
	if errors.Is(err, model.ErrOutOfRange) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
