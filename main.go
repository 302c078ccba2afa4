// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/phsym/console-slog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ffutop/modbus-rtu-slave/internal/config"
	"github.com/ffutop/modbus-rtu-slave/internal/httpapi"
	"github.com/ffutop/modbus-rtu-slave/internal/metrics"
	"github.com/ffutop/modbus-rtu-slave/internal/slave"
	"github.com/ffutop/modbus-rtu-slave/internal/slave/model"
	"github.com/ffutop/modbus-rtu-slave/internal/slave/persistence"
	"github.com/ffutop/modbus-rtu-slave/modbus"
	"github.com/ffutop/modbus-rtu-slave/transport"
	"github.com/ffutop/modbus-rtu-slave/transport/rtu"
	rtuovertcp "github.com/ffutop/modbus-rtu-slave/transport/rtu-over-tcp"
)

func main() {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := run(cfg); err != nil {
		slog.Error("Modbus RTU slave stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("Goodbye.")
}

func run(cfg *config.Config) error {
	slog.Info("Starting Modbus RTU slave...", "slave_id", cfg.Slave.ID, "transport", cfg.Transport.Type)

	storage, err := persistence.Open(cfg.Persistence.Type, cfg.Persistence.Path)
	if err != nil {
		return err
	}
	defer storage.Close()

	cells, err := storage.Load(cfg.Slave.Registers)
	if err != nil {
		return fmt.Errorf("failed to load registers: %w", err)
	}
	regs, err := model.NewRegistersFrom(cells)
	if err != nil {
		return err
	}
	if cfg.Slave.Seed != "" {
		seed, err := config.LoadSeed(cfg.Slave.Seed)
		if err != nil {
			return err
		}
		if err := seed.Apply(regs); err != nil {
			return fmt.Errorf("failed to apply seed: %w", err)
		}
		slog.Info("Applied register seed", "path", cfg.Slave.Seed, "entries", len(seed.Registers))
	}
	// Attach persistence after seeding so the seed is flushed once on Close.
	regs.OnWrite(storage.OnWrite)

	s := slave.New(regs, slave.WithReadEnableDelay(cfg.Slave.ReadEnableDelay))

	reg := metrics.NewRegistry()
	protocolMetrics := metrics.NewProtocol(reg)

	notifier := slave.NewNotifier(cfg.Slave.NotifyQueue)
	metrics.RegisterNotifierDrops(reg, notifier.Dropped)
	notifier.On(modbus.FuncCodeWriteSingleRegister, logWrite)
	notifier.On(modbus.FuncCodeWriteMultipleRegisters, logWrite)

	responder := &rtu.Responder{
		SlaveID:    byte(cfg.Slave.ID),
		Broadcast:  cfg.Slave.Broadcast,
		IdleReset:  cfg.Slave.IdleReset,
		Accept:     s.Accepts,
		OnExchange: notifier.Notify,
		Metrics:    protocolMetrics,
	}

	var upstream transport.Upstream
	switch cfg.Transport.Type {
	case "rtu":
		upstream = rtu.NewServer(cfg.Transport.Serial, responder)
	case "rtu-over-tcp":
		upstream = rtuovertcp.NewServer(cfg.Transport.Tcp, responder)
	default:
		return fmt.Errorf("unknown transport type %q", cfg.Transport.Type)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		notifier.Run(ctx)
	}()

	var admin *httpapi.Server
	if cfg.HTTP.Address != "" {
		admin = httpapi.New(cfg.HTTP.Address, regs, metrics.Handler(reg))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := admin.Start(); err != nil {
				slog.Error("Admin HTTP stopped with error", "err", err)
			}
		}()
	}

	err = upstream.Start(ctx, s.Handle)
	if ctx.Err() != nil {
		slog.Info("Shutting down...")
	}
	stop()

	if admin != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := admin.Shutdown(shutdownCtx); err != nil {
			slog.Error("Admin HTTP shutdown failed", "err", err)
		}
		cancel()
	}
	wg.Wait()
	return err
}

func logWrite(r slave.Request) {
	if !r.IsWrite() {
		return
	}
	slog.Info("Registers written by master",
		"slave_id", r.SlaveID,
		"address", r.Address,
		"quantity", r.Quantity,
		"broadcast", r.Broadcast)
}

func setupLogger(cfg config.LogConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" && cfg.File != "-" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	case "console":
		handler = console.NewHandler(out, &console.HandlerOptions{Level: level})
	default:
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
