package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"packetscope/internal/capture"
	"packetscope/internal/config"
	"packetscope/internal/logging"
	"packetscope/internal/ring"
	"packetscope/internal/tui"
)

func main() {
	interfaceName := flag.String("i", "", "Network interface to capture from (e.g., eth0, wlan0)")
	configPath := flag.String("config", "packetscope.yaml", "Path to configuration file")
	logLevel := flag.String("log-level", "", "Override log level (debug, info, warn, error)")
	autoStart := flag.Bool("start", false, "Start capturing immediately")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *interfaceName != "" {
		cfg.Capture.Interface = *interfaceName
	}

	logger, level, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	buf := ring.New(cfg.Capture.BufferCapacity)
	session := capture.NewSession(buf, capture.Options{
		SnapLen:     cfg.Capture.SnapshotLen,
		Promiscuous: cfg.Capture.Promisc(),
		PollTimeout: cfg.Capture.PollTimeout(),
		BPF:         cfg.Capture.BPF,
	}, logger)

	logger.Info("starting packetscope",
		zap.String("config", *configPath),
		zap.Int("buffer_capacity", buf.Cap()),
	)

	watcher := config.NewWatcher(*configPath, func(newCfg *config.Config) {
		if lvl, err := zapcore.ParseLevel(newCfg.Logging.Level); err == nil {
			level.SetLevel(lvl)
		}
	}, logger)
	if err := watcher.Start(); err != nil {
		// Live log-level tuning is a convenience, not a requirement.
		logger.Warn("config watcher unavailable", zap.Error(err))
	} else {
		defer watcher.Stop()
	}

	if *autoStart {
		if err := session.Start(cfg.Capture.Interface); err != nil {
			logger.Error("initial capture start failed", zap.Error(err))
		}
	}

	model := tui.New(session, capture.Catalog{}, buf, logger)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logger.Error("TUI exited with error", zap.Error(err))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
