// Package main provides a multichannel microphone monitor that captures
// studio inputs and serves live waveform and level displays to the browser.
//
// Usage:
//
//	micmonitor [-config path/to/config.json] [-backend portaudio|miniaudio]
//
// If -config is not specified, the monitor looks for config.json in the
// same directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-micmonitor/internal/capture"
	"github.com/oszuidwest/zwfm-micmonitor/internal/config"
	"github.com/oszuidwest/zwfm-micmonitor/internal/monitor"
	"github.com/oszuidwest/zwfm-micmonitor/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	backendName := flag.String("backend", "portaudio", "Capture backend ("+strings.Join(capture.BackendNames(), " or ")+")")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	backend := capture.FindBackend(*backendName)
	if backend == nil {
		slog.Error("unknown capture backend",
			"backend", *backendName, "available", capture.BackendNames())
		os.Exit(1)
	}

	mon := monitor.New(cfg, backend, *backendName)
	srv := NewServer(cfg, mon)

	// Start monitoring right away. A dead device is not fatal: the web
	// interface stays up so the selection can be fixed there.
	slog.Info("starting monitor", "backend", *backendName)
	if err := mon.Start(); err != nil {
		slog.Error("failed to start monitoring", "error", err)
	}

	// Start web server.
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	// Stop version checker goroutine
	srv.version.Stop()

	// Shut down HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := mon.Close(); err != nil {
		slog.Error("error stopping monitor", "error", err)
	}

	slog.Info("shutdown complete")
}
