package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkbeefcake/vircadia/internal/config"
	"github.com/mkbeefcake/vircadia/internal/metrics"
	"github.com/mkbeefcake/vircadia/internal/mix"
	"github.com/mkbeefcake/vircadia/internal/server"
	"github.com/mkbeefcake/vircadia/internal/stream"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "spatial-audio-mixer"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("udp_port", cfg.Server.UDPPort),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("max_concurrent_streams", cfg.Server.MaxConcurrentStreams),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("ring_capacity", cfg.Audio.RingCapacity),
		slog.Int("frame_size", cfg.Audio.FrameSize),
		slog.Bool("mixer_enabled", cfg.Mixer.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	streamMgr := stream.NewManager(logger, stream.ManagerConfig{
		RingCapacity: cfg.Audio.RingCapacity,
		FrameSize:    cfg.Audio.FrameSize,
		Timeout:      cfg.Audio.GetStreamTimeoutDuration(),
		MaxStreams:   cfg.Server.MaxConcurrentStreams,
	}, appMetrics)
	logger.Info("Session manager initialized",
		slog.Duration("stream_timeout", cfg.Audio.GetStreamTimeoutDuration()),
	)

	udpServer := server.NewUDPServer(&cfg.Server, logger, streamMgr, appMetrics)
	logger.Info("UDP server initialized")

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, streamMgr, udpServer, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	if err := udpServer.Start(); err != nil {
		logger.Error("Failed to start UDP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var mixer *mix.Mixer
	if cfg.Mixer.Enabled {
		mixer = mix.NewMixer(mix.Config{
			SampleRate: cfg.Audio.SampleRate,
			FrameSize:  cfg.Audio.FrameSize,
			Interval:   cfg.Audio.GetFrameInterval(),
			RecordPath: cfg.Mixer.RecordPath,
		}, streamMgr, udpServer.Conn(), logger, appMetrics)
		mixer.Start()
	}

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("udp_address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.UDPPort)),
	)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop the mixer before the UDP socket it sends through closes
	if mixer != nil {
		if err := mixer.Stop(); err != nil {
			logger.Error("Error stopping mixer", slog.String("error", err.Error()))
		}
	}

	if err := udpServer.Stop(); err != nil {
		logger.Error("Error stopping UDP server", slog.String("error", err.Error()))
	}

	streamMgr.Stop()

	stats := udpServer.GetStatistics()
	logger.Info("Final server statistics",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("frames_ingested", stats.FramesIngested),
		slog.Uint64("truncated_frames", stats.TruncatedFrames),
		slog.Uint64("overruns", stats.Overruns),
		slog.Uint64("active_streams", stats.ActiveStreams),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
